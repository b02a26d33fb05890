// parleyctl inspects a local account's message store from the command
// line. It opens the database read-only alongside a running client.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tmarsal/parley/internal/account"
	"github.com/tmarsal/parley/internal/store"
)

func main() {
	accountFlag := flag.String("account", "", "account name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	accountName := account.Resolve(*accountFlag)
	if err := account.ValidateName(accountName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	db, err := store.Open(account.DBPath(accountName), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot open store for account %q: %v\n", accountName, err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	switch args[0] {
	case "conversations":
		cmdConversations(db, *jsonFlag)
	case "search":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: parleyctl search <query>")
			os.Exit(1)
		}
		cmdSearch(db, args[1], *jsonFlag)
	case "status":
		cmdStatus(db, accountName, *jsonFlag)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: parleyctl [--account NAME] [--json] <command>

commands:
  conversations      list conversations
  search <query>     full-text message search
  status             account store summary`)
}

func cmdConversations(db *store.DB, jsonOut bool) {
	convos, err := db.ListConversations(100, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(convos)
		return
	}
	if len(convos) == 0 {
		fmt.Println("No conversations found.")
		return
	}
	for _, c := range convos {
		ts := ""
		if c.LastMessageAt > 0 {
			ts = time.UnixMilli(c.LastMessageAt).Format("2006-01-02 15:04")
		}
		fmt.Printf("%-30s %-16s %s\n", c.Title, ts, c.LastMessagePreview)
	}
}

func cmdSearch(db *store.DB, query string, jsonOut bool) {
	results, err := db.SearchMessages(query, "", 50)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(results)
		return
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, r := range results {
		ts := time.UnixMilli(r.Message.Timestamp).Format("2006-01-02 15:04")
		fmt.Printf("%-25s %-16s %s\n", r.Message.ConversationID, ts, r.Snippet)
	}
}

func cmdStatus(db *store.DB, accountName string, jsonOut bool) {
	convos, err := db.ListConversations(10000, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	total := 0
	for _, c := range convos {
		n, err := db.CountMessages(c.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		total += n
	}
	if jsonOut {
		outputJSON(map[string]any{
			"account":       accountName,
			"db_path":       account.DBPath(accountName),
			"conversations": len(convos),
			"messages":      total,
		})
		return
	}
	fmt.Printf("account:        %s\n", accountName)
	fmt.Printf("store:          %s\n", account.DBPath(accountName))
	fmt.Printf("conversations:  %d\n", len(convos))
	fmt.Printf("messages:       %d\n", total)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
