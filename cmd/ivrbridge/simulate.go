package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/harunnryd/ivrbridge/internal/config"
	"github.com/harunnryd/ivrbridge/internal/conversation"
	"github.com/harunnryd/ivrbridge/internal/daemon/components"
	ivrErrors "github.com/harunnryd/ivrbridge/internal/errors"
	"github.com/harunnryd/ivrbridge/internal/session"
	"github.com/harunnryd/ivrbridge/internal/transaction"
	"github.com/harunnryd/ivrbridge/internal/voice"

	"github.com/google/shlex"
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Talk to the dialogue engine from the terminal",
	Long:  `Runs a local call against an in-process session store, policy and transaction processors. Type what a caller would say; lines starting with / are commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		caller, _ := cmd.Flags().GetString("caller")

		ctx, stop := withInterrupt(context.Background(), cmd.ErrOrStderr())
		defer stop()

		driver, err := newSimulationDriver(ctx, loaded)
		if err != nil {
			return err
		}
		sim := newSimulator(driver, caller, cmd.InOrStdin(), cmd.OutOrStdout())
		return sim.Run(ctx)
	},
}

// newSimulationDriver wires the same components serve uses, minus the
// gateway, archive and notifiers.
func newSimulationDriver(ctx context.Context, c *config.Config) (*conversation.Driver, error) {
	sessComp := components.NewSessionStoreComponent(&c.Session, nil)
	policyComp := components.NewPolicyComponent(c)
	convComp := components.NewConversationComponent(&c.Transactions, sessComp, policyComp, nil)

	for _, comp := range []interface {
		Name() string
		Init(context.Context) error
	}{sessComp, policyComp, convComp} {
		if err := comp.Init(ctx); err != nil {
			return nil, fmt.Errorf("init %s: %w", comp.Name(), err)
		}
	}
	return convComp.Driver(), nil
}

const simulateHelp = `Commands:
  /dtmf <digits>                 press keypad digits
  /confirm                       run the confirmation step of a booking
  /tx <type> [key=value ...]     run a transaction (flight_booking, status_check, cancellation)
  /session                       print the session as JSON
  /hangup [status]               end the call (completed, failed, busy, no-answer)
  /new [caller]                  start a new call
  /help                          show this help
  /exit                          quit`

type simulator struct {
	driver *conversation.Driver
	caller string
	in     *bufio.Reader
	out    io.Writer
	callID string
	seq    int
}

func newSimulator(driver *conversation.Driver, caller string, in io.Reader, out io.Writer) *simulator {
	if caller == "" {
		caller = "+910000000000"
	}
	return &simulator{
		driver: driver,
		caller: caller,
		in:     bufio.NewReader(in),
		out:    out,
	}
}

func (s *simulator) Run(ctx context.Context) error {
	fmt.Fprintf(s.out, "ivrbridge simulator (policy: %s). Type /help for commands.\n", s.driver.PolicyName())
	if err := s.newCall(ctx, s.caller); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Fprint(s.out, "caller> ")
		line, err := s.in.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			if quit := s.handle(ctx, line); quit {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out)
				return nil
			}
			return err
		}
	}
}

func (s *simulator) newCall(ctx context.Context, caller string) error {
	s.seq++
	s.callID = fmt.Sprintf("SIM%s-%d", time.Now().Format("150405"), s.seq)
	if _, err := s.driver.Start(ctx, s.callID, caller); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "[call %s from %s]\n", s.callID, caller)
	fmt.Fprintf(s.out, "bot> %s\n", voice.PromptWelcome)
	fmt.Fprintf(s.out, "     %s\n", voice.PromptWelcomeHint)
	return nil
}

// handle processes one line and reports whether the simulator should exit.
func (s *simulator) handle(ctx context.Context, line string) bool {
	if !strings.HasPrefix(line, "/") {
		s.turn(ctx, line, session.InputSpeech)
		return false
	}

	parts, err := shlex.Split(line)
	if err != nil {
		parts = strings.Fields(line)
	}
	if len(parts) == 0 {
		return false
	}
	cmd, args := parts[0], parts[1:]

	switch cmd {
	case "/exit", "/quit":
		return true
	case "/help":
		fmt.Fprintln(s.out, simulateHelp)
	case "/dtmf":
		if len(args) == 0 {
			fmt.Fprintln(s.out, "usage: /dtmf <digits>")
			return false
		}
		s.turn(ctx, strings.Join(args, ""), session.InputDTMF)
	case "/confirm":
		reply, err := s.driver.Complete(ctx, s.callID)
		s.print(reply, err)
	case "/tx":
		s.transact(ctx, args)
	case "/session":
		s.showSession()
	case "/hangup":
		status := string(session.StatusCompleted)
		if len(args) > 0 {
			status = args[0]
		}
		if s.driver.Hangup(ctx, s.callID, status) {
			fmt.Fprintf(s.out, "[call %s ended: %s]\n", s.callID, status)
		} else {
			fmt.Fprintln(s.out, "[no call ended]")
		}
	case "/new":
		caller := s.caller
		if len(args) > 0 {
			caller = args[0]
		}
		if err := s.newCall(ctx, caller); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (try /help)\n", cmd)
	}
	return false
}

func (s *simulator) turn(ctx context.Context, utterance string, kind session.InputKind) {
	reply, err := s.driver.Turn(ctx, conversation.Input{
		CallID:    s.callID,
		Utterance: utterance,
		Kind:      kind,
	})
	s.print(reply, err)
}

func (s *simulator) print(reply conversation.Reply, err error) {
	if err != nil {
		if errors.Is(err, ivrErrors.ErrSessionNotFound) {
			fmt.Fprintln(s.out, "[no active call, type /new to start one]")
			return
		}
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}

	fmt.Fprintf(s.out, "bot> %s\n", reply.Message)
	meta := []string{}
	if reply.Intent != "" {
		meta = append(meta, "intent="+reply.Intent)
	}
	if reply.Action != "" {
		meta = append(meta, "action="+reply.Action)
	}
	if reply.Confidence > 0 {
		meta = append(meta, fmt.Sprintf("confidence=%.2f", reply.Confidence))
	}
	if len(meta) > 0 {
		fmt.Fprintf(s.out, "     (%s)\n", strings.Join(meta, " "))
	}
	if reply.Ended {
		fmt.Fprintf(s.out, "[call %s ended: %s]\n", s.callID, reply.Status)
	}
}

func (s *simulator) transact(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "usage: /tx <type> [key=value ...]")
		return
	}
	data := session.Values{}
	for _, kv := range args[1:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			fmt.Fprintf(s.out, "ignoring %q, expected key=value\n", kv)
			continue
		}
		data[key] = session.String(value)
	}

	result, err := s.driver.Transact(ctx, s.callID, transaction.Kind(args[0]), data)
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	status := "ok"
	if !result.Success {
		status = "failed"
	}
	fmt.Fprintf(s.out, "tx[%s]> %s\n", status, result.Message)
}

func (s *simulator) showSession() {
	sess, ok := s.driver.Store().Get(s.callID)
	if !ok {
		fmt.Fprintln(s.out, "[no active call]")
		return
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, string(data))
}

func init() {
	simulateCmd.Flags().String("caller", "", "caller number for simulated calls")
	rootCmd.AddCommand(simulateCmd)
}

