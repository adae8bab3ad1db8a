package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dmellis/chatlog/internal/cache"
	"github.com/dmellis/chatlog/internal/config"
	"github.com/dmellis/chatlog/internal/manager"
	"github.com/dmellis/chatlog/internal/model"
	"github.com/dmellis/chatlog/internal/paths"
	"go.uber.org/zap"
)

func main() {
	configFlag := flag.String("config", "", "config file path (overrides ~/.chatlog/config.toml)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	accountFlag := flag.String("account", "", "account path, e.g. gabble/jabber/user")
	idFlag := flag.String("id", "", "conversation identifier (contact id or room id)")
	roomFlag := flag.Bool("room", false, "treat -id as a chatroom")
	maskFlag := flag.String("mask", "any", "event kinds to include: text, call or any")
	maxFlag := flag.Int("max", 20, "maximum number of events for 'recent'")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	mask, err := parseMask(*maskFlag)
	if err != nil {
		fatal(err)
	}

	path := *configFlag
	if path == "" {
		path = paths.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		fatal(err)
	}

	cacheStore, closeCache, err := openCache(cfg)
	if err != nil {
		fatal(err)
	}
	defer closeCache()

	mgr, err := manager.FromConfig(cfg, cacheStore, zap.NewNop())
	if err != nil {
		fatal(err)
	}

	switch args[0] {
	case "dates":
		cmdDates(mgr, *accountFlag, target(*idFlag, *roomFlag), mask, *jsonFlag)
	case "events":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: chatlogctl events <YYYY-MM-DD>")
			os.Exit(1)
		}
		cmdEvents(mgr, *accountFlag, target(*idFlag, *roomFlag), mask, args[1], *jsonFlag)
	case "recent":
		cmdRecent(mgr, *accountFlag, target(*idFlag, *roomFlag), mask, *maxFlag, *jsonFlag)
	case "search":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: chatlogctl search <text>")
			os.Exit(1)
		}
		cmdSearch(mgr, args[1], mask, *jsonFlag)
	case "entities":
		cmdEntities(mgr, *accountFlag, *jsonFlag)
	case "pending":
		channel := ""
		if len(args) >= 2 {
			channel = args[1]
		}
		cmdPending(cacheStore, channel, *jsonFlag)
	case "frequency":
		cmdFrequency(cacheStore, *accountFlag, *idFlag, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatlogctl [flags] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  dates                     List days with logged events")
	fmt.Fprintln(os.Stderr, "  events <YYYY-MM-DD>       Show events of one day")
	fmt.Fprintln(os.Stderr, "  recent                    Show the most recent events")
	fmt.Fprintln(os.Stderr, "  search <text>             Search all conversations")
	fmt.Fprintln(os.Stderr, "  entities                  List conversation targets of an account")
	fmt.Fprintln(os.Stderr, "  pending [channel]         List unacknowledged cached messages")
	fmt.Fprintln(os.Stderr, "  frequency                 Show the interaction score for -account/-id")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "flags:")
	flag.PrintDefaults()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func parseMask(s string) (model.EventMask, error) {
	switch s {
	case "text":
		return model.MaskText, nil
	case "call":
		return model.MaskCall, nil
	case "any":
		return model.MaskAny, nil
	}
	return 0, fmt.Errorf("unknown mask %q (want text, call or any)", s)
}

func target(id string, room bool) model.Entity {
	if room {
		return model.NewRoom(id)
	}
	return model.NewContact(id, "", "")
}

// openCache opens the sqlite cache read/write so pending and frequency
// queries work even when the daemon is not running.
func openCache(cfg *config.Config) (*cache.Store, func(), error) {
	db, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		return nil, nil, err
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return cache.NewStore("Sqlite", db, zap.NewNop()), func() { _ = db.Close() }, nil
}

func cmdDates(mgr *manager.Manager, account string, target model.Entity, mask model.EventMask, jsonOut bool) {
	dates, err := mgr.Dates(account, target, mask)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		out := make([]string, 0, len(dates))
		for _, d := range dates {
			out = append(out, d.String())
		}
		outputJSON(out)
		return
	}
	for _, d := range dates {
		fmt.Println(d)
	}
}

func cmdEvents(mgr *manager.Manager, account string, target model.Entity, mask model.EventMask, day string, jsonOut bool) {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		fatal(fmt.Errorf("bad date %q: %w", day, err))
	}
	events, err := mgr.EventsForDate(account, target, mask, model.DateOf(t))
	if err != nil {
		fatal(err)
	}
	printEvents(events, jsonOut)
}

func cmdRecent(mgr *manager.Manager, account string, target model.Entity, mask model.EventMask, max int, jsonOut bool) {
	events, err := mgr.FilteredEvents(account, target, mask, max, nil)
	if err != nil {
		fatal(err)
	}
	printEvents(events, jsonOut)
}

func cmdSearch(mgr *manager.Manager, text string, mask model.EventMask, jsonOut bool) {
	hits, err := mgr.Search(text, mask)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		type hit struct {
			Account string `json:"account"`
			ID      string `json:"id"`
			Type    string `json:"type"`
			Date    string `json:"date"`
		}
		out := make([]hit, 0, len(hits))
		for _, h := range hits {
			out = append(out, hit{h.Account, h.ID, string(h.Type), h.Date.String()})
		}
		outputJSON(out)
		return
	}
	for _, h := range hits {
		fmt.Printf("%s  %-10s %s (%s)\n", h.Date, h.Type, h.ID, h.Account)
	}
}

func cmdEntities(mgr *manager.Manager, account string, jsonOut bool) {
	entities, err := mgr.Entities(account)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		type ent struct {
			Type  string `json:"type"`
			ID    string `json:"id"`
			Alias string `json:"alias"`
		}
		out := make([]ent, 0, len(entities))
		for _, e := range entities {
			out = append(out, ent{string(e.Type), e.Identifier, e.Alias})
		}
		outputJSON(out)
		return
	}
	for _, e := range entities {
		fmt.Printf("%-8s %s", e.Type, e.Identifier)
		if e.Alias != e.Identifier {
			fmt.Printf(" (%s)", e.Alias)
		}
		fmt.Println()
	}
}

func cmdPending(cacheStore *cache.Store, channel string, jsonOut bool) {
	pending, err := cacheStore.PendingMessages(channel)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(pending)
		return
	}
	if len(pending) == 0 {
		fmt.Println("No pending messages.")
		return
	}
	for _, p := range pending {
		fmt.Printf("%-6d %s  %s (%s)\n", p.PendingID, p.LogID, p.ChatIdentifier, p.Account)
	}
}

func cmdFrequency(cacheStore *cache.Store, account, identifier string, jsonOut bool) {
	score, err := cacheStore.Frequency(account, identifier)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(map[string]any{"account": account, "id": identifier, "frequency": score})
		return
	}
	fmt.Printf("%.3f\n", score)
}

func printEvents(events []model.Event, jsonOut bool) {
	if jsonOut {
		type row struct {
			Kind      string `json:"kind"`
			Timestamp string `json:"timestamp"`
			Sender    string `json:"sender"`
			Alias     string `json:"alias,omitempty"`
			Message   string `json:"message,omitempty"`
			Duration  string `json:"duration,omitempty"`
			EndReason string `json:"end_reason,omitempty"`
			LogID     string `json:"log_id"`
		}
		out := make([]row, 0, len(events))
		for _, ev := range events {
			info := ev.Info()
			r := row{
				Timestamp: info.Timestamp.Format(time.RFC3339),
				Sender:    info.Sender.Identifier,
				Alias:     info.Sender.Alias,
				LogID:     info.LogID,
			}
			switch e := ev.(type) {
			case *model.TextEvent:
				r.Kind = "text"
				r.Message = e.Message
			case *model.CallEvent:
				r.Kind = "call"
				if e.Duration != model.NeverStarted {
					r.Duration = e.Duration.String()
				}
				r.EndReason = string(e.EndReason)
			}
			out = append(out, r)
		}
		outputJSON(out)
		return
	}
	for _, ev := range events {
		info := ev.Info()
		stamp := info.Timestamp.Local().Format("2006-01-02 15:04:05")
		switch e := ev.(type) {
		case *model.TextEvent:
			fmt.Printf("%s  <%s> %s\n", stamp, info.Sender.Alias, e.Message)
		case *model.CallEvent:
			if e.Duration == model.NeverStarted {
				fmt.Printf("%s  call with %s, never answered (%s)\n", stamp, info.Sender.Alias, e.EndReason)
			} else {
				fmt.Printf("%s  call with %s, %s (%s)\n", stamp, info.Sender.Alias, e.Duration, e.EndReason)
			}
		}
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
