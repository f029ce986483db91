package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"

	"call-lab/repositories"
)

// Offline inspector for the engine database: dumps the call archive or the
// stored presence records without going through the running process.
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	prefix := flag.String("prefix", "call:", "Prefix to scan (call: or presence:)")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	var count int
	switch *prefix {
	case "presence:":
		table.SetHeader([]string{"Identity", "Display Name", "Status", "Custom", "Last Seen"})
		count, err = scanPresence(db, table)
	default:
		table.SetHeader([]string{"Call ID", "Caller", "Callee", "Kind", "Reason", "Ended", "Duration"})
		count, err = scanCalls(db, table)
	}
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
	color.Green.Printf("\n%d entries under %q\n", count, *prefix)
}

func scanCalls(db *badger.DB, table *tablewriter.Table) (int, error) {
	count := 0
	err := db.View(func(txn *badger.Txn) error {
		prefix := []byte("call:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				var stored repositories.DiskCallSession
				if err := json.Unmarshal(v, &stored); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}

				duration := "-"
				if stored.ConnectedAt != 0 && stored.EndedAt != 0 {
					d := time.Duration(stored.EndedAt - stored.ConnectedAt)
					duration = d.Round(time.Millisecond).String()
				}

				displayID := stored.ID
				if len(displayID) > 8 {
					displayID = displayID[:8]
				}

				table.Append([]string{
					displayID,
					stored.Caller,
					stored.Callee,
					stored.Kind,
					stored.Reason,
					time.Unix(0, stored.EndedAt).Format("15:04:05"),
					duration,
				})
				count++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return count, err
}

func scanPresence(db *badger.DB, table *tablewriter.Table) (int, error) {
	count := 0
	err := db.View(func(txn *badger.Txn) error {
		prefix := []byte("presence:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				var stored repositories.DiskPresence
				if err := json.Unmarshal(v, &stored); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}

				table.Append([]string{
					stored.Identity,
					stored.DisplayName,
					stored.Status,
					stored.CustomStatus,
					time.Unix(0, stored.LastSeenAt).Format("2006-01-02 15:04:05"),
				})
				count++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return count, err
}
