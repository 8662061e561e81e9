package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/osagaming/avicrm/internal/config"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default <data dir>/config.toml)")
	addrFlag := flag.String("addr", "", "daemon address (overrides config)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		configPath = filepath.Join(config.Default().DataDir, "config.toml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	addr := cfg.ListenAddr
	if *addrFlag != "" {
		addr = *addrFlag
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "config" {
		if len(args) >= 2 && args[1] == "init" {
			cmdConfigInit(configPath, cfg)
			return
		}
		fmt.Fprintln(os.Stderr, "usage: avicrmctl config init")
		os.Exit(1)
	}

	c := &client{base: "http://" + addr, http: &http.Client{Timeout: 30 * time.Second}}

	switch args[0] {
	case "status":
		cmdStatus(c, *jsonFlag)
	case "sync":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: avicrmctl sync <run|last>")
			os.Exit(1)
		}
		cmdSync(c, args[1], *jsonFlag)
	case "shops":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: avicrmctl shops <list|add>")
			os.Exit(1)
		}
		cmdShops(c, args[1], args[2:], *jsonFlag)
	case "chats":
		cmdChats(c, args[1:], *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: avicrmctl [--config <path>] [--addr <host:port>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status           Show daemon status")
	fmt.Fprintln(os.Stderr, "  sync run         Trigger a sync pass now")
	fmt.Fprintln(os.Stderr, "  sync last        Show the last pass result")
	fmt.Fprintln(os.Stderr, "  shops list       List registered shops")
	fmt.Fprintln(os.Stderr, "  shops add        Register a shop (see shops add -h)")
	fmt.Fprintln(os.Stderr, "  chats            List chats (use --shop to filter)")
	fmt.Fprintln(os.Stderr, "  config init      Write the default config file")
}

type client struct {
	base string
	http *http.Client
}

func (c *client) get(path string, out any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return fmt.Errorf("cannot reach daemon at %s: %w", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

func (c *client) post(path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = strings.NewReader(string(raw))
	}
	resp, err := c.http.Post(c.base+path, "application/json", body)
	if err != nil {
		return fmt.Errorf("cannot reach daemon at %s: %w", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func cmdConfigInit(path string, cfg *config.Config) {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "error: %s already exists\n", path)
		os.Exit(1)
	}
	if err := config.Save(path, cfg); err != nil {
		fatal(err)
	}
	fmt.Printf("Wrote %s\n", path)
}

func cmdStatus(c *client, jsonOut bool) {
	var resp struct {
		State       string `json:"state"`
		SyncRunning bool   `json:"sync_running"`
		LastPassAt  int64  `json:"last_pass_at"`
	}
	if err := c.get("/status", &resp); err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("State:        %s\n", resp.State)
	fmt.Printf("Sync running: %v\n", resp.SyncRunning)
	if resp.LastPassAt > 0 {
		fmt.Printf("Last pass:    %s\n", time.UnixMilli(resp.LastPassAt).Format(time.RFC3339))
	} else {
		fmt.Println("Last pass:    never")
	}
}

func cmdSync(c *client, subcmd string, jsonOut bool) {
	switch subcmd {
	case "run":
		var resp map[string]string
		if err := c.post("/sync/run", nil, &resp); err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(resp)
			return
		}
		fmt.Println("Sync pass triggered.")
	case "last":
		var resp struct {
			PassID          string `json:"pass_id"`
			StartedAt       int64  `json:"started_at"`
			FinishedAt      int64  `json:"finished_at"`
			ShopsTotal      int    `json:"shops_total"`
			ShopsSuccess    int    `json:"shops_success"`
			ShopsFailed     int    `json:"shops_failed"`
			ChatsCreated    int    `json:"chats_created"`
			ChatsUpdated    int    `json:"chats_updated"`
			MessagesCreated int    `json:"messages_created"`
		}
		if err := c.get("/sync/last", &resp); err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(resp)
			return
		}
		fmt.Printf("Pass:     %s\n", resp.PassID)
		fmt.Printf("Shops:    %d ok, %d failed of %d\n", resp.ShopsSuccess, resp.ShopsFailed, resp.ShopsTotal)
		fmt.Printf("Chats:    %d created, %d updated\n", resp.ChatsCreated, resp.ChatsUpdated)
		fmt.Printf("Messages: %d ingested\n", resp.MessagesCreated)
	default:
		fmt.Fprintf(os.Stderr, "unknown sync subcommand: %s\n", subcmd)
		os.Exit(1)
	}
}

func cmdShops(c *client, subcmd string, rest []string, jsonOut bool) {
	switch subcmd {
	case "list":
		var shops []struct {
			ID       int64  `json:"id"`
			Name     string `json:"name"`
			ShopURL  string `json:"shop_url"`
			IsActive bool   `json:"is_active"`
		}
		if err := c.get("/shops", &shops); err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(shops)
			return
		}
		if len(shops) == 0 {
			fmt.Println("No shops registered.")
			return
		}
		for _, s := range shops {
			state := "inactive"
			if s.IsActive {
				state = "active"
			}
			fmt.Printf("%-4d %-24s %s (%s)\n", s.ID, s.Name, s.ShopURL, state)
		}
	case "add":
		fs := flag.NewFlagSet("shops add", flag.ExitOnError)
		name := fs.String("name", "", "shop display name (required)")
		shopURL := fs.String("url", "", "public shop page URL")
		clientID := fs.String("client-id", "", "marketplace API client id")
		clientSecret := fs.String("client-secret", "", "marketplace API client secret")
		userID := fs.String("user-id", "", "marketplace account user id")
		_ = fs.Parse(rest)
		if *name == "" {
			fmt.Fprintln(os.Stderr, "error: --name is required")
			os.Exit(1)
		}
		payload := map[string]string{
			"name":          *name,
			"shop_url":      *shopURL,
			"client_id":     *clientID,
			"client_secret": *clientSecret,
			"user_id":       *userID,
		}
		var resp map[string]any
		if err := c.post("/shops", payload, &resp); err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(resp)
			return
		}
		fmt.Printf("Shop %v registered with id %v.\n", resp["name"], resp["id"])
	default:
		fmt.Fprintf(os.Stderr, "unknown shops subcommand: %s\n", subcmd)
		os.Exit(1)
	}
}

func cmdChats(c *client, rest []string, jsonOut bool) {
	fs := flag.NewFlagSet("chats", flag.ExitOnError)
	shopID := fs.Int64("shop", 0, "filter by shop id")
	limit := fs.Int("limit", 50, "max chats to return")
	_ = fs.Parse(rest)

	path := fmt.Sprintf("/chats?limit=%d", *limit)
	if *shopID > 0 {
		path += fmt.Sprintf("&shop_id=%d", *shopID)
	}
	var chats []struct {
		ID          int64  `json:"id"`
		ClientName  string `json:"client_name"`
		LastMessage string `json:"last_message"`
		UnreadCount int    `json:"unread_count"`
		Status      string `json:"status"`
		Priority    string `json:"priority"`
	}
	if err := c.get(path, &chats); err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(chats)
		return
	}
	if len(chats) == 0 {
		fmt.Println("No chats.")
		return
	}
	for _, ch := range chats {
		preview := ch.LastMessage
		if len(preview) > 48 {
			preview = preview[:48] + "…"
		}
		fmt.Printf("%-4d %-20s [%s/%s] unread=%d  %s\n", ch.ID, ch.ClientName, ch.Status, ch.Priority, ch.UnreadCount, preview)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
