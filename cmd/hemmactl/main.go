package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hemma-app/hemma/internal/ctl"
	"github.com/hemma-app/hemma/internal/session"
	"github.com/hemma-app/hemma/internal/store"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// login only touches local files, no daemon needed.
	if args[0] == "login" {
		cmdLogin(sessionName, args[1:])
		return
	}

	c := ctl.New(session.SocketPath(sessionName))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "sync":
		if err := c.Reconcile(ctx); err != nil {
			fail(err)
		}
		fmt.Println("ok")
	case "notifications":
		cmdNotifications(ctx, c, args[1:], *jsonFlag)
	case "rooms":
		cmdRooms(ctx, c, args[1:], *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: hemmactl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  login <token>                 Store the bearer credential")
	fmt.Fprintln(os.Stderr, "  status                        Show channel status and unread count")
	fmt.Fprintln(os.Stderr, "  sync                          Reconcile the cache against the server")
	fmt.Fprintln(os.Stderr, "  notifications list            List notifications")
	fmt.Fprintln(os.Stderr, "  notifications read <id|all>   Mark read")
	fmt.Fprintln(os.Stderr, "  notifications delete <id|all> Delete")
	fmt.Fprintln(os.Stderr, "  rooms list <direct|group>     List room summaries")
	fmt.Fprintln(os.Stderr, "  rooms join <kind> <id>        Subscribe to a room")
	fmt.Fprintln(os.Stderr, "  rooms leave <kind> <id>       Unsubscribe from a room")
	fmt.Fprintln(os.Stderr, "  rooms read <kind> <id>        Clear a room's unread counter")
	fmt.Fprintln(os.Stderr, "  rooms send <kind> <id> <text> Send a message")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func cmdLogin(sessionName string, args []string) {
	if len(args) != 1 || args[0] == "" {
		fmt.Fprintln(os.Stderr, "usage: hemmactl login <token>")
		os.Exit(1)
	}
	if err := session.SaveCredential(sessionName, args[0]); err != nil {
		fail(err)
	}
	fmt.Printf("Credential stored for session %q. Restart hemmad to apply.\n", sessionName)
}

func cmdStatus(ctx context.Context, c *ctl.Client, jsonOut bool) {
	st, err := c.Status(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("Stream: %s\n", st.Stream)
	fmt.Printf("Chat:   %s\n", st.Chat)
	fmt.Printf("Unread: %d\n", st.Unread)
}

func cmdNotifications(ctx context.Context, c *ctl.Client, args []string, jsonOut bool) {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		list, unread, err := c.Notifications(ctx)
		if err != nil {
			fail(err)
		}
		if jsonOut {
			outputJSON(map[string]any{"notifications": list, "unread": unread})
			return
		}
		for _, n := range list {
			marker := " "
			if !n.Read {
				marker = "*"
			}
			fmt.Printf("%s %8d  %-10s %s\n", marker, n.ID, n.Category, n.Title)
		}
		fmt.Printf("%d notifications, %d unread\n", len(list), unread)
	case "read":
		withID(args, func(id int64) error { return c.MarkRead(ctx, id) },
			func() error { return c.MarkAllRead(ctx) })
	case "delete":
		withID(args, func(id int64) error { return c.Delete(ctx, id) },
			func() error { return c.DeleteAll(ctx) })
	default:
		fmt.Fprintln(os.Stderr, "usage: hemmactl notifications <list|read|delete>")
		os.Exit(1)
	}
}

// withID runs one(id) for a numeric argument or all() for the literal "all".
func withID(args []string, one func(int64) error, all func() error) {
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: hemmactl notifications %s <id|all>\n", args[0])
		os.Exit(1)
	}
	if args[1] == "all" {
		if err := all(); err != nil {
			fail(err)
		}
		fmt.Println("ok")
		return
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		fail(fmt.Errorf("bad id %q", args[1]))
	}
	if err := one(id); err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

func cmdRooms(ctx context.Context, c *ctl.Client, args []string, jsonOut bool) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: hemmactl rooms <list|join|leave|read|send>")
		os.Exit(1)
	}
	switch args[0] {
	case "list":
		kind := store.RoomDirect
		if len(args) > 1 {
			kind = args[1]
		}
		list, err := c.Rooms(ctx, kind)
		if err != nil {
			fail(err)
		}
		if jsonOut {
			outputJSON(map[string]any{"rooms": list})
			return
		}
		for _, r := range list {
			unread := ""
			if r.UnreadCount > 0 {
				unread = fmt.Sprintf(" (%d)", r.UnreadCount)
			}
			fmt.Printf("%-20s %-6s %s%s\n", r.RoomID, r.LastActivity, firstNonEmpty(r.Name, r.RoomID), unread)
			if r.Preview != "" {
				fmt.Printf("    %s\n", r.Preview)
			}
		}
	case "join", "leave", "read":
		if len(args) != 3 {
			fmt.Fprintf(os.Stderr, "usage: hemmactl rooms %s <kind> <id>\n", args[0])
			os.Exit(1)
		}
		kind, id := args[1], args[2]
		var err error
		switch args[0] {
		case "join":
			err = c.JoinRoom(ctx, id, kind)
		case "leave":
			err = c.LeaveRoom(ctx, id, kind)
		case "read":
			err = c.MarkRoomRead(ctx, id, kind)
		}
		if err != nil {
			fail(err)
		}
		fmt.Println("ok")
	case "send":
		if len(args) < 4 {
			fmt.Fprintln(os.Stderr, "usage: hemmactl rooms send <kind> <id> <text>")
			os.Exit(1)
		}
		if err := c.Send(ctx, args[2], args[1], strings.Join(args[3:], " ")); err != nil {
			fail(err)
		}
		fmt.Println("ok")
	default:
		fmt.Fprintln(os.Stderr, "usage: hemmactl rooms <list|join|leave|read|send>")
		os.Exit(1)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
