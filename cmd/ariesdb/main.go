// Command ariesdb is a demonstration harness for the engine in package
// ariesdb. It exists only to exercise the public operations from a shell.
package main

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ariesdb"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.New().Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	var dbPath string

	root := &cobra.Command{
		Use:   "ariesdb",
		Short: "Drive a fixed-size-record storage engine from the shell",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "ariesdb.data", "path to the data file")

	open := func() (*ariesdb.Engine, error) {
		return ariesdb.Open(dbPath, nil)
	}

	root.AddCommand(
		newInsertCmd(open),
		newReadCmd(open),
		newUpdateCmd(open),
		newBeginCmd(open),
		newCommitCmd(open),
		newRollbackCmd(open),
		newCheckpointCmd(open),
		newCrashCmd(open),
		newRecoverCmd(open),
		newDumpJournalCmd(open),
		newCountCmd(open),
	)
	return root
}

func newInsertCmd(open func() (*ariesdb.Engine, error)) *cobra.Command {
	var sync bool
	cmd := &cobra.Command{
		Use:   "insert <payload>",
		Short: "Append a new record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			var recordID int64
			if sync {
				recordID, err = e.InsertRecordSync([]byte(args[0]))
			} else {
				recordID, err = e.InsertRecord([]byte(args[0]))
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted record %d\n", recordID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&sync, "sync", false, "force the page after inserting")
	return cmd
}

func newReadCmd(open func() (*ariesdb.Engine, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "read <record_id>",
		Short: "Read one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			payload, err := e.ReadRecord(id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", payload)
			return nil
		},
	}
}

func newUpdateCmd(open func() (*ariesdb.Engine, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "update <record_id> <payload>",
		Short: "Update one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()
			return e.UpdateRecord(id, []byte(args[1]))
		},
	}
}

func newBeginCmd(open func() (*ariesdb.Engine, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "begin",
		Short: "Start a transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()
			return e.Begin()
		},
	}
}

func newCommitCmd(open func() (*ariesdb.Engine, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "commit",
		Short: "Commit the open transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()
			return e.Commit()
		},
	}
}

func newRollbackCmd(open func() (*ariesdb.Engine, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback",
		Short: "Roll back the open transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()
			return e.Rollback()
		},
	}
}

func newCheckpointCmd(open func() (*ariesdb.Engine, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint",
		Short: "Flush dirty pages and write a checkpoint marker",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()
			return e.Checkpoint()
		},
	}
}

func newCrashCmd(open func() (*ariesdb.Engine, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "crash",
		Short: "Simulate a crash: drop all in-memory state",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()
			return e.Crash()
		},
	}
}

func newRecoverCmd(open func() (*ariesdb.Engine, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Run ARIES analysis/redo/undo against the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()
			return e.Recover()
		},
	}
}

func newDumpJournalCmd(open func() (*ariesdb.Engine, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "dump-journal",
		Short: "Print a human-readable dump of the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			out, err := e.PrintJournal()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newCountCmd(open func() (*ariesdb.Engine, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the current record count",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()
			fmt.Fprintln(cmd.OutOrStdout(), e.GetRecordCount())
			return nil
		},
	}
}

func parseRecordID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid record id %q: %w", s, err)
	}
	return id, nil
}
