package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/thesecretlab-dev/anima-dashboard/internal/config"
	"github.com/thesecretlab-dev/anima-dashboard/internal/sandbox"
	"github.com/thesecretlab-dev/anima-dashboard/internal/sessions"
)

func newSandboxArgsCmd() *cobra.Command {
	var sessionKey string
	var scope string

	cmd := &cobra.Command{
		Use:   "sandbox-args",
		Short: "Print the container argv the sandbox policy compiles to",
		Long: "Compiles the configured sandbox policy into the container-engine\n" +
			"create arguments without creating anything. Policies that would\n" +
			"break isolation are rejected with the same error serve would hit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			createdAt := time.Now()
			scopeKey := sessions.CanonicalKey(scope, sessionKey)
			spec := sandbox.CreateSpec{
				Name:        cfg.Sandbox.ContainerName(scopeKey, createdAt),
				Config:      cfg.Sandbox,
				ScopeKey:    scopeKey,
				CreatedAtMs: createdAt.UnixMilli(),
			}
			argv, err := sandbox.BuildCreateArgs(spec)
			if err != nil {
				return err
			}
			for _, arg := range argv {
				fmt.Println(arg)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionKey, "session", "main", "session display key")
	cmd.Flags().StringVar(&scope, "scope", "local", "session scope")
	return cmd
}
