package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"domainguard/internal/events"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var protectionCmd = &cobra.Command{
	Use:   "protection",
	Short: "Manage the optional local PIN gate",
}

var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "Set, check, verify, or remove the PIN",
}

var pinSetCmd = &cobra.Command{Use: "set", Short: "Set or change the PIN", Run: withApp(runPinSet)}
var pinStatusCmd = &cobra.Command{Use: "status", Short: "Show whether a PIN is configured and whether a session is active", Run: withApp(runPinStatus)}
var pinVerifyCmd = &cobra.Command{Use: "verify", Short: "Establish a 30-minute verified session", Run: withApp(runPinVerify)}
var pinRemoveCmd = &cobra.Command{Use: "remove", Short: "Request PIN removal (takes effect after a 24h delay)", Run: withApp(runPinRemove)}

func init() {
	protectionCmd.AddCommand(pinCmd)
	pinCmd.AddCommand(pinSetCmd)
	pinCmd.AddCommand(pinStatusCmd)
	pinCmd.AddCommand(pinVerifyCmd)
	pinCmd.AddCommand(pinRemoveCmd)
}

// readPIN masks input on an interactive terminal and falls back to a
// plain line read when stdin is piped (tests, scripts), matching the
// teacher's promptPassword pattern.
func readPIN(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprintf(os.Stderr, "%s: ", label)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func runPinSet(a *app, cmd *cobra.Command, args []string) error {
	pin, err := readPIN("new PIN")
	if err != nil {
		return err
	}
	confirm, err := readPIN("confirm PIN")
	if err != nil {
		return err
	}
	if pin == "" {
		return fmt.Errorf("ndbctl: PIN cannot be empty")
	}
	if pin != confirm {
		return fmt.Errorf("ndbctl: PINs do not match")
	}
	if err := a.pinGate.SetPIN(pin); err != nil {
		return err
	}
	fmt.Println("PIN set")
	return nil
}

func runPinStatus(a *app, cmd *cobra.Command, args []string) error {
	now := a.clock.Now()
	hasPIN, err := a.pinGate.HasPIN()
	if err != nil {
		return err
	}
	fmt.Printf("configured: %t\n", hasPIN)
	if !hasPIN {
		return nil
	}
	active, err := a.pinGate.SessionActive(now)
	if err != nil {
		return err
	}
	fmt.Printf("session active: %t\n", active)
	lockedOut, until, err := a.pinGate.LockedOut(now)
	if err != nil {
		return err
	}
	if lockedOut {
		fmt.Printf("locked out until %s\n", until.Format(time.RFC3339))
	}
	return nil
}

func runPinVerify(a *app, cmd *cobra.Command, args []string) error {
	now := a.clock.Now()
	pin, err := readPIN("PIN")
	if err != nil {
		return err
	}
	ok, err := a.pinGate.Verify(pin, now)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("ndbctl: incorrect PIN")
	}
	fmt.Println("verified")
	return nil
}

func runPinRemove(a *app, cmd *cobra.Command, args []string) error {
	now := a.clock.Now()
	if err := checkPINSession(a, "protection pin remove", now); err != nil {
		return err
	}
	req, err := a.unlockSt.RequestUnlock("pin", "pin", "operator requested PIN removal", 24, now)
	if err != nil {
		return err
	}
	fmt.Printf("PIN removal queued, id=%s, takes effect %s (cancellable until then)\n", req.ID, req.ExecuteAt.Format(time.RFC3339))
	return nil
}

// processDueUnlockRequests executes unlock requests whose delay has
// elapsed. Only the "pin" item type is actionable by the core today (see
// DESIGN.md): locked domain/category removal still requires an operator
// policy-file edit, which is out of scope per spec.md §1.
func (a *app) processDueUnlockRequests(now time.Time) error {
	due, err := a.unlockSt.DueRequests(now)
	if err != nil {
		return err
	}
	for _, r := range due {
		if r.ItemType != "pin" {
			continue
		}
		if err := a.pinGate.RemovePINUnconditionally(); err != nil {
			return err
		}
		if err := a.unlockSt.MarkExecuted(r.ID); err != nil {
			return err
		}
		_ = a.auditLog.Record(now, "reconciler", events.Verb("PIN_REMOVED"), "pin", map[string]string{"id": r.ID})
		a.log.Info("pin removal executed", zap.String("id", r.ID))
	}
	return nil
}
