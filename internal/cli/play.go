package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"quicktrivia/internal/app"
	"quicktrivia/internal/config"
	"quicktrivia/internal/domain"
	"quicktrivia/internal/infra/memory"
	"quicktrivia/internal/infra/opentdb"
	"quicktrivia/internal/logger"
	"quicktrivia/internal/names"
)

type playOptions struct {
	questions  int
	category   int
	difficulty string
}

// NewPlayCmd plays a solo game in the terminal.
func NewPlayCmd(configPath *string) *cobra.Command {
	opts := playOptions{}
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a solo game in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			provider := opentdb.NewClient(cfg.Trivia.BaseURL, config.TTLDuration(cfg.Trivia.Timeout, 10*time.Second))
			service := newLocalService(cfg, provider)
			return playSolo(cmd.Context(), service, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&opts.questions, "questions", "n", 0, "number of questions (5-25); asked for when omitted")
	cmd.Flags().IntVar(&opts.category, "category", 0, "category id, 0 for any")
	cmd.Flags().StringVar(&opts.difficulty, "difficulty", "", "easy, medium or hard; empty for any")
	return cmd
}

// newLocalService wires a single-player service on in-memory stores. Logs
// go to warn level so they do not interleave with the game.
func newLocalService(cfg config.Config, provider *opentdb.Client) *app.GameService {
	log := logger.New("warn", "text")
	categories := memory.NewCategoryCache(provider, config.TTLDuration(cfg.Trivia.CategoryTTL, time.Hour))
	rooms := app.NewRoomSynchronizer(memory.NewRoomStore(), names.NewGenerator(), log)
	return app.NewGameService(memory.NewSessionStore(), rooms, app.NewPoolBuilder(provider), categories, memory.NewResultStore(), app.ServiceConfig{
		RevealDelay:          config.TTLDuration(cfg.Game.RevealDelay, app.DefaultRevealDelay),
		DefaultQuestionCount: cfg.Game.DefaultQuestionCount,
		Logger:               log,
	})
}

const terminalPlayer = "terminal"

func playSolo(ctx context.Context, service *app.GameService, opts playOptions, in io.Reader, out io.Writer) error {
	updates, cancel, err := service.Subscribe(ctx, terminalPlayer)
	if err != nil {
		return err
	}
	defer cancel()

	if _, err := service.SelectMode(ctx, terminalPlayer, domain.ModeSolo); err != nil {
		return err
	}
	setup, err := service.EnterSetup(ctx, terminalPlayer)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	difficulty := domain.Difficulty(opts.difficulty)
	patch := domain.SettingsPatch{CategoryID: &opts.category, Difficulty: &difficulty}
	if opts.questions != 0 {
		patch.QuestionCount = &opts.questions
	} else {
		n, set, err := readQuestionCount(scanner, out, setup.Settings.QuestionCount)
		if err != nil {
			return err
		}
		if set {
			patch.QuestionCount = &n
		}
	}
	if _, err := service.UpdateSettings(ctx, terminalPlayer, patch); err != nil {
		return err
	}

	fmt.Fprintln(out, "Fetching questions...")
	state, err := service.Submit(ctx, terminalPlayer)
	if err != nil {
		return err
	}

	for state.Phase == domain.PhaseInProgress {
		q := state.Current
		fmt.Fprintf(out, "\nQuestion %d/%d [%s, %s]\n%s\n", q.Number, state.Total, q.Category, q.Difficulty, q.Text)
		for i, c := range q.Choices {
			fmt.Fprintf(out, "  %d) %s\n", i+1, c)
		}

		choice, err := readChoice(scanner, out, len(q.Choices))
		if err != nil {
			return err
		}
		answered, err := service.Answer(ctx, terminalPlayer, choice)
		if err != nil {
			return err
		}
		if answered.LastAnswer != nil && answered.LastAnswer.Correct {
			fmt.Fprintln(out, "Correct!")
		} else {
			fmt.Fprintf(out, "Wrong, the answer was %s\n", answered.Current.CorrectAnswer)
		}

		state, err = waitForReveal(ctx, updates, answered.CurrentIndex)
		if err != nil {
			return err
		}
	}

	if state.Summary != nil {
		fmt.Fprintf(out, "\nFinal score: %d/%d\n", state.Summary.Score, state.Summary.Total)
		if state.Summary.Expert {
			fmt.Fprintln(out, "You're a trivia expert!")
		}
	}
	return nil
}

// readQuestionCount asks for the number of questions. An empty line keeps
// the default and reports set=false.
func readQuestionCount(scanner *bufio.Scanner, out io.Writer, def int) (n int, set bool, err error) {
	for {
		fmt.Fprintf(out, "Number of questions (%d-%d, empty for %d): ", domain.MinQuestionCount, domain.MaxQuestionCount, def)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return 0, false, err
			}
			return 0, false, io.EOF
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return 0, false, nil
		}
		count, err := app.ParseQuestionCount(line)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		return count, true, nil
	}
}

func readChoice(scanner *bufio.Scanner, out io.Writer, n int) (int, error) {
	for {
		fmt.Fprintf(out, "Your answer (1-%d): ", n)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		choice, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err == nil && choice >= 1 && choice <= n {
			return choice - 1, nil
		}
	}
}

// waitForReveal blocks until the session moves past the question at index.
// Older snapshots still buffered in updates are skipped.
func waitForReveal(ctx context.Context, updates <-chan domain.SessionState, index int) (domain.SessionState, error) {
	for {
		select {
		case state, ok := <-updates:
			if !ok {
				return domain.SessionState{}, fmt.Errorf("session closed")
			}
			switch {
			case state.Phase == domain.PhaseSummary:
				return state, nil
			case state.Phase == domain.PhaseInProgress && state.CurrentIndex > index && !state.RevealActive:
				return state, nil
			}
		case <-ctx.Done():
			return domain.SessionState{}, ctx.Err()
		}
	}
}
