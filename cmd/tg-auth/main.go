package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/gotd/td/session"
	"github.com/gotd/td/session/tdesktop"
	"github.com/mdp/qrterminal/v3"

	"github.com/blockedby/chansearch/internal/config"
	"github.com/blockedby/chansearch/internal/logger"
	"github.com/blockedby/chansearch/internal/telegram"
)

func main() {
	useTData := flag.Bool("tdata", false, "import the session from Telegram Desktop instead of QR login")
	tdataPath := flag.String("tdata-path", "", "Telegram Desktop tdata directory (default: platform location)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fail("load config", err)
	}
	if err := logger.Init("warn", ""); err != nil {
		fail("init logger", err)
	}
	if !cfg.HasUserClient() {
		fail("config", errors.New("API_ID and API_HASH must be set"))
	}

	fmt.Println("=== telegram auth tool ===")
	fmt.Printf("session file: %s\n\n", cfg.SessionFile)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := telegram.OpenSessionStore(cfg.SessionFile)
	if err != nil {
		fail("open session store", err)
	}

	manager := telegram.NewManager(cfg, db)
	if err := manager.Init(ctx); err != nil {
		fail("init telegram", err)
	}
	defer manager.Stop()

	if manager.Ready() {
		fmt.Println("✓ a working session is already stored, nothing to do")
		fmt.Println("delete the session file to log in with another account")
		return
	}

	if *useTData {
		path := *tdataPath
		if path == "" {
			path = getTelegramDesktopPath()
		}
		data, err := readTData(path)
		if err != nil {
			fail("read telegram desktop session", err)
		}
		if err := manager.Import(ctx, data); err != nil {
			fail("import telegram desktop session", err)
		}
		if !manager.Ready() {
			fail("import telegram desktop session", errors.New("stored session was rejected"))
		}
	} else {
		fmt.Println("open Telegram on your phone: Settings > Devices > Link Desktop Device")
		fmt.Println("then scan the code below. a new code is shown when the old one expires.")
		err := manager.StartQR(ctx, func(url string) {
			fmt.Println()
			qrterminal.GenerateHalfBlock(url, qrterminal.L, os.Stdout)
			fmt.Println(url)
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				fmt.Println("\ncanceled")
				os.Exit(1)
			}
			fail("qr login", err)
		}
	}

	fmt.Println("\n✓ authentication successful!")
	if client := manager.GetClient(); client != nil && client.Self != nil {
		fmt.Printf("logged in as: @%s\n", client.Self.Username)
	}
	fmt.Println("the crawler will pick up the session on the next bot start")
	fmt.Println("\n⚠️  keep the session file secret! it provides full access to your telegram account")
}

// readTData loads one Telegram Desktop account as a gotd session.
func readTData(path string) (*session.Data, error) {
	if !strings.HasSuffix(path, "tdata") {
		path = filepath.Join(path, "tdata")
	}
	accounts, err := tdesktop.Read(path, nil)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts in %s", path)
	}

	data, err := session.TDesktopSession(selectAccount(accounts))
	if err != nil {
		return nil, fmt.Errorf("convert account: %w", err)
	}
	return data, nil
}

func selectAccount(accounts []tdesktop.Account) tdesktop.Account {
	if len(accounts) == 1 {
		fmt.Println("using the only available account")
		return accounts[0]
	}

	fmt.Printf("found %d telegram accounts:\n", len(accounts))
	for i := range accounts {
		fmt.Printf("  %d. Account #%d\n", i+1, i+1)
	}
	fmt.Print("\nselect account number [1]: ")

	choice, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	n, err := strconv.Atoi(strings.TrimSpace(choice))
	if err != nil || n < 1 || n > len(accounts) {
		n = 1
	}
	return accounts[n-1]
}

// getTelegramDesktopPath returns the path to Telegram Desktop data directory
func getTelegramDesktopPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Telegram Desktop", "tdata")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Telegram Desktop", "tdata")
	default: // linux
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "TelegramDesktop", "tdata")
	}
}

func fail(what string, err error) {
	fmt.Printf("error: %s: %v\n", what, err)
	os.Exit(1)
}
