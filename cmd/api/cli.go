package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Wikid82/sentinel/internal/services"
)

var errUsage = errors.New("usage: block|unblock|allow|unallow <ip> | resync | stats")

func isCommand(name string) bool {
	switch name {
	case "block", "unblock", "allow", "unallow", "resync", "stats":
		return true
	}
	return false
}

func cliMeta() services.ActionMeta {
	host, _ := os.Hostname()
	return services.ActionMeta{Actor: "cli", Host: host}
}

// runCommand executes one operator command against the stores.
func runCommand(out io.Writer, args []string, svc *services.SentinelService) error {
	if len(args) == 0 {
		return errUsage
	}
	meta := cliMeta()

	ipOps := map[string]func(string, services.ActionMeta) (bool, error){
		"block":   svc.BlockIP,
		"unblock": svc.UnblockIP,
		"allow":   svc.AllowIP,
		"unallow": svc.UnallowIP,
	}
	if op, ok := ipOps[args[0]]; ok {
		if len(args) != 2 {
			return errUsage
		}
		changed, err := op(args[1], meta)
		if err != nil {
			return err
		}
		if changed {
			fmt.Fprintf(out, "%s %s: done\n", args[0], args[1])
		} else {
			fmt.Fprintf(out, "%s %s: no change\n", args[0], args[1])
		}
		return nil
	}

	switch args[0] {
	case "resync":
		ts, err := svc.ForceResync(meta)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "resync requested at %s\n", ts.Format("2006-01-02T15:04:05Z07:00"))
		return nil
	case "stats":
		report := struct {
			Status        services.Status `json:"status"`
			TopIPs        any             `json:"top_ips"`
			TopCategories any             `json:"top_categories"`
		}{
			Status:        svc.Status(),
			TopIPs:        svc.TopIPs(5),
			TopCategories: svc.TopCategories(5),
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return errUsage
}
