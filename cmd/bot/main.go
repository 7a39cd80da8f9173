package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	applog "voxelcraft.ai/signlink/internal/log"
	"voxelcraft.ai/signlink/internal/protocol"
	"voxelcraft.ai/signlink/internal/sim/geom"
)

var (
	url     string
	name    string
	opToken string
	posA    string
	posB    string
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "bot",
	Short: "Place two signs, link them and teleport through the link",
	Long: `Connects to a running server as an operator and performs, in one ACT:
place sign A, place sign B, label both, hold OBSIDIAN, use A, use B (link),
hold STONE, use A (teleport to B). Every notice and result is logged.`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&url, "url", "ws://localhost:8080/v1/ws", "ws url")
	f.StringVar(&name, "name", "admin", "player name (an operator in tuning.yaml)")
	f.StringVar(&opToken, "op-token", "", "operator token for --name")
	f.StringVar(&posA, "a", "2,64,0", "first sign x,y,z")
	f.StringVar(&posB, "b", "-2,64,0", "second sign x,y,z")
	f.DurationVar(&timeout, "timeout", 10*time.Second, "give up after this long")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	logger := applog.New(applog.Config{Console: true, Service: "signlink-bot"})

	a, err := geom.ParseKey(posA)
	if err != nil {
		return fmt.Errorf("--a: %w", err)
	}
	b, err := geom.ParseKey(posB)
	if err != nil {
		return fmt.Errorf("--b: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      name,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8},
	}
	if opToken != "" {
		hello.Auth = &protocol.HelloAuth{OperatorToken: opToken}
	}
	if err := conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("send HELLO: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		return fmt.Errorf("read WELCOME: %w", err)
	}
	logger.Info().Str("player", welcome.PlayerID).Int("permission_level", welcome.Self.PermissionLevel).
		Ints("pos", welcome.Self.Pos[:]).Msg("WELCOME")

	script := linkScript(a, b)
	if err := conn.WriteJSON(protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Instants:        script,
	}); err != nil {
		return fmt.Errorf("send ACT: %w", err)
	}

	pending := map[string]bool{}
	for _, in := range script {
		pending[in.ID] = true
	}
	for len(pending) > 0 {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w (%d results missing)", err, len(pending))
		}
		var obs protocol.ObsMsg
		if err := json.Unmarshal(msg, &obs); err != nil || obs.Type != protocol.TypeObs {
			continue
		}
		for _, e := range obs.Events {
			logEvent(logger, obs.Tick, e)
			if e["type"] == protocol.EventActionResult {
				if ref, _ := e["ref"].(string); ref != "" {
					delete(pending, ref)
				}
			}
		}
		if len(pending) == 0 {
			logger.Info().Ints("pos", obs.Self.Pos[:]).Msg("done")
		}
	}
	return nil
}

func linkScript(a, b geom.Pos) []protocol.InstantReq {
	in := func(id, typ string, pos geom.Pos) protocol.InstantReq {
		return protocol.InstantReq{ID: id, Type: typ, Pos: pos.ToArray()}
	}
	placeA := in("place_a", protocol.InstantPlaceBlock, a)
	placeA.Block = "SIGN"
	placeB := in("place_b", protocol.InstantPlaceBlock, b)
	placeB.Block = "SIGN"
	textA := in("text_a", protocol.InstantSetSign, a)
	textA.Text = "Sign A"
	textB := in("text_b", protocol.InstantSetSign, b)
	textB.Text = "Sign B"
	return []protocol.InstantReq{
		placeA, placeB, textA, textB,
		{ID: "hold_obsidian", Type: protocol.InstantHold, Item: "OBSIDIAN"},
		in("select_a", protocol.InstantUseBlock, a),
		in("link_b", protocol.InstantUseBlock, b),
		{ID: "hold_stone", Type: protocol.InstantHold, Item: "STONE"},
		in("teleport", protocol.InstantUseBlock, a),
	}
}

func logEvent(logger zerolog.Logger, tick uint64, e protocol.Event) {
	ev := logger.Info().Uint64("tick", tick)
	for _, k := range []string{"ref", "ok", "code", "message", "channel", "text", "from", "to", "pos", "block"} {
		if v, ok := e[k]; ok {
			ev = ev.Interface(k, v)
		}
	}
	ev.Msg(fmt.Sprint(e["type"]))
}
