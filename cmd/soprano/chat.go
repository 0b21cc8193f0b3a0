package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/spf13/cobra"
	"github.com/tbxark/soprano/agent"
	"github.com/tbxark/soprano/assistant"
	"github.com/tbxark/soprano/audio"
	"github.com/tbxark/soprano/config"
	"github.com/tbxark/soprano/fields"
	"github.com/tbxark/soprano/guide"
	"github.com/tbxark/soprano/host"
	"github.com/tbxark/soprano/speech"
	"github.com/tbxark/soprano/trace"
	"github.com/tbxark/soprano/types"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run a guided form session in the console",
	Long: `Each stdin line is one utterance. With --stt openai each line is instead
the path of an audio file sent to Whisper. Replies are printed, or rendered
to mp3 files with --tts-dir. With --free there is no form: lines go to free
conversation and "where is" questions highlight demo screen elements.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().String("form", fields.SendMoneyID, "form id (see `soprano forms`)")
	chatCmd.Flags().Bool("free", false, "free conversation without a form")
	chatCmd.Flags().String("stt", "text", "speech to text: text or openai")
	chatCmd.Flags().String("tts-dir", "", "synthesize replies with OpenAI into this directory")
	chatCmd.Flags().Bool("plain", false, "ask the model for raw JSON instead of a forced tool call")
	chatCmd.Flags().Float64("balance", 25000, "account balance shown on the demo screen")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	formID, _ := cmd.Flags().GetString("form")
	free, _ := cmd.Flags().GetBool("free")
	stt, _ := cmd.Flags().GetString("stt")
	ttsDir, _ := cmd.Flags().GetString("tts-dir")
	plain, _ := cmd.Flags().GetBool("plain")
	balance, _ := cmd.Flags().GetFloat64("balance")

	speechConf := speech.OpenAIConfig{
		APIKey:             cfg.OpenAI.APIKey,
		BaseURL:            cfg.OpenAI.BaseURL,
		TranscriptionModel: cfg.OpenAI.TranscriptionModel,
		SpeechModel:        cfg.OpenAI.SpeechModel,
		Voice:              cfg.OpenAI.Voice,
		Language:           cfg.Language,
	}
	if (stt == "openai" || ttsDir != "") && speechConf.APIKey == "" {
		return fmt.Errorf("OpenAI speech needs openai.api_key or OPENAI_API_KEY")
	}

	coord := guide.NewCoordinator()
	coord.OnChange(func(s guide.Spotlight, guiding bool) {
		if guiding {
			fmt.Printf("[highlight %s]\n", s.ElementID)
		}
	})

	completer, err := newCompleter(ctx, cfg, coord, plain)
	if err != nil {
		return err
	}

	recorder := audio.NewLineRecorder(os.Stdin, os.Stdout)
	var transcriber speech.Transcriber = speech.TextTranscriber{}
	switch stt {
	case "text":
	case "openai":
		recorder.ReadFiles = true
		transcriber = speech.NewOpenAITranscriber(speechConf)
	default:
		return fmt.Errorf("unknown --stt %q: must be text or openai", stt)
	}

	hooks := agent.Hooks{
		OnError: func(err error) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		},
		OnSessionEnd: func(formID string, outcome agent.Outcome) {
			fmt.Printf("[%s %s]\n", formID, outcome)
		},
	}
	var session *audio.Session
	if ttsDir != "" {
		hooks.OnSpeak = func(text string) { fmt.Printf("soprano: %s\n", text) }
		session = audio.NewSession(recorder, speech.NewOpenAISynthesizer(speechConf), &audio.FilePlayer{Dir: ttsDir, Report: os.Stdout})
	} else {
		session = audio.NewSession(recorder, audio.TextSynthesizer{}, audio.WriterPlayer{W: os.Stdout, Prefix: "soprano: "})
	}
	defer session.Close()

	opts := []agent.Option{
		agent.WithSettleDelay(cfg.Dialogue.SettleDelay),
		agent.WithHistoryWindow(cfg.Dialogue.HistoryWindow),
		agent.WithGuide(coord),
		agent.WithScanner(demoScanner{}),
		agent.WithHooks(hooks),
	}
	if cfg.Trace.Path != "" {
		store, err := trace.Open(cfg.Trace.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, agent.WithObserver(store))
	}
	orch := agent.New(session, transcriber, completer, opts...)
	defer orch.Stop()

	screen := "home"
	if !free {
		screen = formID
	}
	registerDemoElements(coord, screen)
	orch.SetScreen(screen, map[string]any{"balance": balance})

	if free {
		return freeChat(ctx, orch)
	}

	form, ok := fields.NewDefaultRegistry().Form(formID)
	if !ok {
		return fmt.Errorf("%w: unknown form %q", agent.ErrGuidedUnavailable, formID)
	}
	if c := cfg.Dialogue.ConfirmBeforeSubmit; c != nil {
		form.ConfirmBeforeSubmit = *c
	}
	h, err := host.NewJSONForm(form, map[string]any{"balance": balance},
		host.WithSubmit(func(ctx context.Context, values map[string]any) error {
			out, err := sonic.ConfigStd.MarshalIndent(values, "", "  ")
			if err != nil {
				return err
			}
			fmt.Printf("[submitted]\n%s\n", out)
			return nil
		}),
	)
	if err != nil {
		return err
	}

	res, err := orch.Start(ctx, form, h)
	if err != nil {
		return err
	}
	fmt.Printf("[session %s]\n", res.SessionID)
	for orch.Active() && res.Listening && !recorder.Exhausted() {
		res, err = orch.EndUtterance(ctx)
		if err != nil {
			return err
		}
		slog.Debug("turn finished", "outcome", res.Outcome, "intent", res.Intent)
	}
	return nil
}

func newCompleter(ctx context.Context, cfg *config.Config, coord *guide.Coordinator, plain bool) (assistant.Completer, error) {
	local := assistant.NewLocalCompleter(coord)
	if cfg.Provider != config.ProviderOpenAI {
		return local, nil
	}
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.ChatModel,
		BaseURL: cfg.OpenAI.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	opts := []assistant.Option{
		assistant.WithLanguage(cfg.LanguageName()),
		assistant.WithHistory(cfg.Dialogue.HistoryWindow),
	}
	var remote assistant.Completer
	if plain {
		remote, err = assistant.NewChatCompleter(cm, opts...)
	} else {
		remote, err = assistant.NewStructuredCompleter(cm, opts...)
	}
	if err != nil {
		return nil, err
	}
	return assistant.NewFailbackCompleter(remote, local), nil
}

func freeChat(ctx context.Context, orch *agent.Orchestrator) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if _, err := orch.HandleTranscript(ctx, text); err != nil {
			return err
		}
	}
}

func registerDemoElements(coord *guide.Coordinator, screen string) {
	for _, el := range []guide.Element{
		{ID: "balance_card", Keywords: []string{"balance", "money left"}},
		{ID: "send_money_button", Keywords: []string{"send", "pay", "transfer"}},
		{ID: "scan_button", Keywords: []string{"scan", "camera", "qr"}},
		{ID: "history_tab", Keywords: []string{"history", "transactions", "statement"}},
		{ID: "profile_menu", Keywords: []string{"profile", "address", "settings"}},
	} {
		coord.RegisterElement(screen, el)
	}
}

// demoScanner stands in for the camera: it reads the extracted fields from
// <documentType>.json in the working directory.
type demoScanner struct{}

func (demoScanner) Scan(ctx context.Context, documentType string) (map[string]any, error) {
	data, err := os.ReadFile(documentType + ".json")
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: no %s.json to read", types.ErrCapture, documentType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrCapture, err)
	}
	var out map[string]any
	if err := sonic.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrExtraction, err)
	}
	return out, nil
}
