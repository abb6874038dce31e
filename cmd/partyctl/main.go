// Package main provides partyctl, an operator CLI for the partyline
// HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/soundhaus/partyline/internal/domain/delta"
	"github.com/soundhaus/partyline/internal/domain/party"
)

var (
	app    = kingpin.New("partyctl", "partyline operator client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Participant token (or set PARTYLINE_TOKEN env)").Envar("PARTYLINE_TOKEN").String()

	createCmd      = app.Command("create", "Create a party")
	createName     = createCmd.Arg("name", "Party name").Required().String()
	createGenre    = createCmd.Flag("genre", "Party genre").Default("Mixed").String()
	createPrivacy  = createCmd.Flag("privacy", "public or private").Default("public").String()
	createPassword = createCmd.Flag("password", "Password for private parties").String()

	listCmd = app.Command("list", "List public parties")

	joinCmd      = app.Command("join", "Join a party and print a token")
	joinParty    = joinCmd.Arg("party-id", "Party ID").Required().String()
	joinName     = joinCmd.Flag("name", "Display name").Default("operator").String()
	joinPassword = joinCmd.Flag("password", "Password for private parties").String()

	statusCmd   = app.Command("status", "Show session status")
	statusParty = statusCmd.Arg("party-id", "Party ID").Required().String()

	skipCmd   = app.Command("skip", "Skip the current track")
	skipParty = skipCmd.Arg("party-id", "Party ID").Required().String()

	pauseCmd   = app.Command("pause", "Pause playback")
	pauseParty = pauseCmd.Arg("party-id", "Party ID").Required().String()

	resumeCmd   = app.Command("resume", "Resume playback")
	resumeParty = resumeCmd.Arg("party-id", "Party ID").Required().String()

	closeCmd   = app.Command("close", "Close a party")
	closeParty = closeCmd.Arg("party-id", "Party ID").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch command {
	case createCmd.FullCommand():
		create()
	case listCmd.FullCommand():
		list()
	case joinCmd.FullCommand():
		join()
	case statusCmd.FullCommand():
		status(*statusParty)
	case skipCmd.FullCommand():
		simpleOp(*skipParty, "playback/skip", "Track skipped")
	case pauseCmd.FullCommand():
		simpleOp(*pauseParty, "playback/pause", "Playback paused")
	case resumeCmd.FullCommand():
		simpleOp(*resumeParty, "playback/resume", "Playback resumed")
	case closeCmd.FullCommand():
		closeOp(*closeParty)
	}
}

func request(method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, *server+"/api/v1/"+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if *token != "" {
		req.Header.Set("Authorization", "Bearer "+*token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func fatal(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}

func create() {
	genre := party.Genre(*createGenre)
	if !genre.Valid() {
		fmt.Printf("Unknown genre %q. Valid genres:\n", *createGenre)
		for _, g := range party.Genres() {
			fmt.Printf("  %s\n", g)
		}
		os.Exit(1)
	}

	var created struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	err := request("POST", "parties", map[string]any{
		"name":     *createName,
		"genre":    *createGenre,
		"privacy":  *createPrivacy,
		"password": *createPassword,
	}, &created)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Party created: %s (%s)\n", created.Name, created.ID)
}

func list() {
	var listed struct {
		Parties []struct {
			ID        string    `json:"id"`
			Name      string    `json:"name"`
			Genre     string    `json:"genre"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"parties"`
	}
	if err := request("GET", "parties", nil, &listed); err != nil {
		fatal(err)
	}
	if len(listed.Parties) == 0 {
		fmt.Println("No public parties")
		return
	}
	for _, p := range listed.Parties {
		fmt.Printf("%s  %-25s %-12s %s\n", p.ID, p.Name, p.Genre, p.CreatedAt.Format(time.RFC3339))
	}
}

func join() {
	var joined struct {
		Token         string `json:"token"`
		ParticipantID string `json:"participant_id"`
		Role          string `json:"role"`
	}
	err := request("POST", "parties/"+*joinParty+"/join", map[string]any{
		"display_name": *joinName,
		"password":     *joinPassword,
	}, &joined)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Joined as %s (%s)\n", joined.ParticipantID, joined.Role)
	fmt.Printf("Token: %s\n", joined.Token)
}

func status(partyID string) {
	var snap delta.Snapshot
	if err := request("GET", "parties/"+partyID+"/status", nil, &snap); err != nil {
		fatal(err)
	}

	fmt.Println("\n=== SESSION STATUS ===")
	fmt.Printf("Party: %s (%s)\n", snap.PartyName, snap.Genre)
	fmt.Printf("Version: %d\n", snap.Version)
	fmt.Printf("State: %s\n", snap.State)
	fmt.Printf("Participants: %d (host: %s)\n", len(snap.Participants), snap.HostID)

	if snap.CurrentTrack != nil {
		fmt.Println("\nCurrently Playing:")
		fmt.Printf("  %s - %s\n", snap.CurrentTrack.Artist, snap.CurrentTrack.Title)
		fmt.Printf("  Position: %s / %s\n",
			(time.Duration(snap.Clock.ElapsedMs) * time.Millisecond).Round(time.Second),
			(time.Duration(snap.CurrentTrack.DurationMs) * time.Millisecond).Round(time.Second))
		fmt.Printf("  Requested by: %s\n", snap.CurrentTrack.RequestedBy)
	} else {
		fmt.Println("\nNo track currently playing")
	}

	if len(snap.Queue) > 0 {
		fmt.Println("\nQueue:")
		for i, entry := range snap.Queue {
			fmt.Printf("  %2d. %s - %s (%d votes)\n", i+1, entry.Track.Artist, entry.Track.Title, entry.Votes)
		}
	}
	fmt.Println()
}

func simpleOp(partyID, op, success string) {
	if err := request("POST", "parties/"+partyID+"/"+op, nil, nil); err != nil {
		fatal(err)
	}
	fmt.Println(success)
}

func closeOp(partyID string) {
	if err := request("DELETE", "parties/"+partyID, nil, nil); err != nil {
		fatal(err)
	}
	fmt.Println("Party closed")
}
