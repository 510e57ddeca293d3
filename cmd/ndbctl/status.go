package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show override state, pending actions, and whether a PIN is set (no tick summary)",
	Run:   withApp(runStatus),
}

func runStatus(a *app, cmd *cobra.Command, args []string) error {
	now := a.clock.Now()

	panicActive, panicExp, err := a.panicState.Active(now)
	if err != nil {
		return err
	}
	pauseActive, pauseExp, err := a.pause.Active(now)
	if err != nil {
		return err
	}

	if panicActive {
		fmt.Printf("panic: active until %s\n", panicExp.Format("2006-01-02T15:04:05Z07:00"))
	} else {
		fmt.Println("panic: inactive")
	}
	if pauseActive {
		fmt.Printf("pause: active until %s\n", pauseExp.Format("2006-01-02T15:04:05Z07:00"))
	} else {
		fmt.Println("pause: inactive")
	}

	pending, err := a.pendingSt.List(false)
	if err != nil {
		return err
	}
	fmt.Printf("pending actions: %d\n", len(pending))
	for _, p := range pending {
		fmt.Printf("  %s  %s  due %s\n", p.ID, p.Target, p.ExecuteAt.Format("2006-01-02T15:04:05Z07:00"))
	}

	hasPIN, err := a.pinGate.HasPIN()
	if err != nil {
		return err
	}
	fmt.Printf("pin configured: %t\n", hasPIN)

	return nil
}
