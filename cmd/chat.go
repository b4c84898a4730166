package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/plura-ai/onboard/internal/dispatch"
)

var chatUserID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the onboarding assistant in the terminal",
	Run:   runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatUserID, "user", "cli-user", "User ID to chat as")
}

func runChat(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	assistant, store, err := buildAssistant(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	sessionID := uuid.New().String()
	fmt.Printf("Session %s. Say \"onboard me\" to start, /quit to exit.\n", sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/quit" || text == "/exit" {
			return
		}

		streamed := false
		reply, err := assistant.SendMessage(cmd.Context(), sessionID, chatUserID, text, func(frag string) {
			streamed = true
			fmt.Print(frag)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
			continue
		}
		if streamed {
			fmt.Println()
		}
		printOutcome(reply.Display, streamed)
		if reply.Display.Kind == dispatch.KindComplete {
			return
		}
	}
}

// printOutcome renders the non-text outcome variants the web client
// would turn into interactive views.
func printOutcome(o dispatch.Outcome, streamed bool) {
	switch o.Kind {
	case dispatch.KindText:
		if !streamed {
			fmt.Println(o.Text)
		}
	case dispatch.KindProceed:
		fmt.Printf("%s [yes/no]\n", o.Text)
	case dispatch.KindWorkspaceForm:
		if o.Workspace != nil && o.Workspace.Exists {
			fmt.Printf("[workspace form] existing workspace %q (%s)\n", o.Workspace.Name, o.Workspace.ID)
		} else {
			fmt.Println("[workspace form] enter a name for your first workspace")
		}
	case dispatch.KindProjectForm:
		if o.Project != nil && o.Project.Exists {
			fmt.Printf("[project form] existing project %q in workspace %s\n", o.Project.Name, o.Project.WorkspaceID)
		} else if o.Project != nil {
			fmt.Printf("[project form] enter a name for a project in workspace %s\n", o.Project.WorkspaceID)
		}
	case dispatch.KindComplete:
		fmt.Println(o.Text)
	}
}
