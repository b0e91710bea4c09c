// Command dynamoctl is the operator CLI: submit actions to the registry,
// list and cancel them, and inspect cluster host status from the master
// store. It talks to the same bolt-backed stores dynamod uses, not over
// the network, matching spec.md's "out of scope: network API" framing
// while still giving an operator a way to drive the system end to end.
/*
 * Copyright (c) 2024-2026, the dynamo project authors.
 */
package main

import (
	"context"
	"crypto/md5"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cpausmit/dynamo/internal/master/boltstore"
	"github.com/cpausmit/dynamo/internal/registry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		registryPath string
		masterPath   string
	)

	root := &cobra.Command{
		Use:   "dynamoctl",
		Short: "operator CLI for the data-management engine",
	}
	root.PersistentFlags().StringVar(&registryPath, "registry", "/var/lib/dynamo/registry.db", "path to the registry bolt database")
	root.PersistentFlags().StringVar(&masterPath, "master", "/var/lib/dynamo/master.db", "path to the master bolt database")

	root.AddCommand(
		newSubmitCmd(&registryPath),
		newListCmd(&registryPath),
		newCancelCmd(&registryPath),
		newAuthorizeCmd(&registryPath),
		newHostsCmd(&masterPath),
	)
	return root
}

func openRegistry(path string) (*registry.BoltBackend, error) {
	return registry.OpenBolt(path)
}

func newSubmitCmd(registryPath *string) *cobra.Command {
	var (
		payload string
		args    string
		user    uint64
		userName string
		write   bool
	)
	cmd := &cobra.Command{
		Use:   "submit <title>",
		Short: "submit a new action to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			reg, err := openRegistry(*registryPath)
			if err != nil {
				return err
			}
			defer reg.Close()

			id, err := reg.Submit(registry.Action{
				Title:        posArgs[0],
				Path:         payload,
				Args:         args,
				UserID:       user,
				UserName:     userName,
				Timestamp:    time.Now(),
				Status:       registry.StatusNew,
				WriteRequest: write,
			})
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "directory holding the action's payload executable/plugin")
	cmd.Flags().StringVar(&args, "args", "", "argument string passed to the payload")
	cmd.Flags().Uint64Var(&user, "user-id", 0, "submitting user's id")
	cmd.Flags().StringVar(&userName, "user-name", "", "submitting user's name")
	cmd.Flags().BoolVar(&write, "write", false, "request the single write slot")
	_ = cmd.MarkFlagRequired("payload")
	return cmd
}

func newListCmd(registryPath *string) *cobra.Command {
	var ids []uint64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "show the status of one or more actions",
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			reg, err := openRegistry(*registryPath)
			if err != nil {
				return err
			}
			defer reg.Close()

			if len(ids) == 0 {
				return errors.New("dynamoctl: list requires --id at least once")
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tEXIT\tWRITE")
			for _, id := range ids {
				action, err := reg.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if action == nil {
					fmt.Fprintf(w, "%d\t-\tnotfound\t-\t-\n", id)
					continue
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%v\n", action.ID, action.Title, action.Status, action.ExitCode, action.WriteRequest)
			}
			return nil
		},
	}
	cmd.Flags().Uint64SliceVar(&ids, "id", nil, "action id to show (repeatable)")
	return cmd
}

func newCancelCmd(registryPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "mark an action killed so the scheduler's next reap tears it down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			id, err := strconv.ParseUint(posArgs[0], 10, 64)
			if err != nil {
				return errors.Wrap(err, "dynamoctl: parse id")
			}
			reg, err := openRegistry(*registryPath)
			if err != nil {
				return err
			}
			defer reg.Close()
			return reg.SetStatus(cmd.Context(), id, registry.StatusKilled, nil)
		},
	}
	return cmd
}

func newAuthorizeCmd(registryPath *string) *cobra.Command {
	var (
		payloadFile string
		userID      uint64
	)
	cmd := &cobra.Command{
		Use:   "authorize <title>",
		Short: "authorize a payload executable's checksum for write actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			data, err := os.ReadFile(payloadFile)
			if err != nil {
				return errors.Wrap(err, "dynamoctl: read payload")
			}
			reg, err := openRegistry(*registryPath)
			if err != nil {
				return err
			}
			defer reg.Close()
			return reg.Authorize(registry.AuthEntry{
				Title:    posArgs[0],
				Checksum: md5.Sum(data),
				UserID:   userID,
			})
		},
	}
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "path to the exact executable bytes to authorize")
	cmd.Flags().Uint64Var(&userID, "user-id", 0, "user id to authorize (0 = any user)")
	_ = cmd.MarkFlagRequired("payload-file")
	return cmd
}

func newHostsCmd(masterPath *string) *cobra.Command {
	var holderID string
	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "list cluster hosts and their master-store status",
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			store, err := boltstore.Open(*masterPath, holderID)
			if err != nil {
				return err
			}
			defer store.Close()

			hosts, err := store.HostList(context.Background())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "HOST\tSTATUS\tHAS_STORE")
			for _, h := range hosts {
				fmt.Fprintf(w, "%s\t%s\t%v\n", h.Hostname, h.Status, h.HasStore)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&holderID, "holder-id", "dynamoctl", "lock holder identity to present to the master store")
	return cmd
}
