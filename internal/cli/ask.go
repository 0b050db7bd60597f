package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"calmchat/internal/app"
	"calmchat/internal/chat"
	"calmchat/internal/session"

	"github.com/spf13/cobra"
)

var (
	askSession string
	askStudy   bool
	askJSON    bool
	chatStudy  bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question",
	Long: `Answers a single question from the ingested documents. Pass --session to continue
an existing conversation; otherwise a new one is started and its id is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Reads questions from standard input, one per line, and answers each within the
same conversation. Type /ajuda for the available commands and "sair" to leave.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "conversation id to continue")
	askCmd.Flags().BoolVar(&askStudy, "study", false, "answer in study mode (technical, for professionals)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	chatCmd.Flags().BoolVar(&chatStudy, "study", false, "start in study mode")
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	req := chat.AskRequest{Question: args[0], SessionID: askSession}
	if cmd.Flags().Changed("study") || askSession == "" {
		study := askStudy
		req.StudyMode = &study
	}
	resp, err := a.Chat.Ask(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	if askJSON {
		return printJSON(cmd, resp)
	}
	printAnswer(cmd, resp)
	cmd.Printf("\nSession: %s\n", resp.SessionID)
	return nil
}

func printAnswer(cmd *cobra.Command, resp chat.AskResponse) {
	cmd.Println(resp.Answer)
	if len(resp.Sources) == 0 {
		return
	}
	cmd.Println()
	cmd.Println("Fontes:")
	for i, src := range resp.Sources {
		cmd.Printf("  [%d] %s, página %d (similaridade %.2f)\n", i+1, src.Filename, src.Page, src.Similarity)
	}
}

var exampleQuestions = []string{
	"Quais são os sintomas mais comuns da fobia social?",
	"Como funciona a terapia cognitivo-comportamental para fobia social?",
	"Quais técnicas de respiração posso usar durante uma crise de ansiedade?",
	"Como posso me preparar para uma situação social difícil?",
	"Quais são os benefícios da exposição gradual?",
	"Como identificar pensamentos negativos automáticos?",
	"Quais exercícios de relaxamento são mais eficazes?",
	"Como posso ajudar alguém com fobia social?",
}

const chatHelp = `Comandos:
  /estudo     alterna o modo estudo
  /resumo     mostra o resumo da conversa
  /exportar   salva a conversa em JSON
  /limpar     inicia uma nova conversa
  /exemplos   sugere perguntas
  /ajuda      mostra esta ajuda
  sair        encerra`

var errChatQuit = errors.New("quit")

type chatLoop struct {
	app     *app.App
	cmd     *cobra.Command
	session session.Session
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.Sessions.Create(cmd.Context(), chatStudy)
	if err != nil {
		return err
	}
	loop := &chatLoop{app: a, cmd: cmd, session: sess}
	cmd.Println("Assistente de fobia social. Digite /ajuda para ver os comandos.")
	cmd.Println("Este sistema é uma ferramenta educacional e não substitui o acompanhamento profissional.")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		cmd.Print("\nVocê: ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := loop.handle(cmd.Context(), line); err != nil {
			if errors.Is(err, errChatQuit) {
				break
			}
			cmd.PrintErrf("Desculpe, ocorreu um erro: %v\n", err)
		}
	}
	cmd.Printf("\nConversa %s encerrada.\n", loop.session.ID)
	return scanner.Err()
}

func (l *chatLoop) handle(ctx context.Context, line string) error {
	switch strings.ToLower(line) {
	case "sair", "exit", "quit":
		return errChatQuit
	case "/ajuda":
		l.cmd.Println(chatHelp)
		return nil
	case "/exemplos":
		for i, q := range exampleQuestions {
			l.cmd.Printf("  %d. %s\n", i+1, q)
		}
		return nil
	case "/estudo":
		study := !l.session.StudyMode
		if err := l.app.Sessions.SetStudyMode(ctx, l.session.ID, study); err != nil {
			return err
		}
		l.session.StudyMode = study
		l.cmd.Printf("Modo estudo: %s\n", onOff(study))
		return nil
	case "/resumo":
		sess, err := l.app.Sessions.Get(ctx, l.session.ID)
		if err != nil {
			return err
		}
		sum := session.Summarize(sess)
		l.cmd.Printf("Mensagens: %d (você %d, assistente %d)\n", sum.TotalMessages, sum.UserMessages, sum.AssistantMessages)
		if len(sum.RecentTopics) > 0 {
			l.cmd.Printf("Tópicos recentes: %s\n", strings.Join(sum.RecentTopics, ", "))
		}
		return nil
	case "/exportar":
		sess, err := l.app.Sessions.Get(ctx, l.session.ID)
		if err != nil {
			return err
		}
		if len(sess.Turns) == 0 {
			l.cmd.Println("Nenhuma conversa para exportar.")
			return nil
		}
		path, err := session.WriteExport(l.app.Config.ExportDir, sess)
		if err != nil {
			return err
		}
		l.cmd.Printf("Conversa exportada para %s\n", path)
		return nil
	case "/limpar":
		sess, err := l.app.Sessions.Create(ctx, l.session.StudyMode)
		if err != nil {
			return err
		}
		l.session = sess
		l.cmd.Println("Nova conversa iniciada.")
		return nil
	}

	resp, err := l.app.Chat.Ask(ctx, chat.AskRequest{Question: line, SessionID: l.session.ID})
	if err != nil {
		return err
	}
	l.cmd.Print("\nAssistente: ")
	printAnswer(l.cmd, resp)
	return nil
}
