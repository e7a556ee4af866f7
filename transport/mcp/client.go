package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/dicerace/game/config"
	"github.com/wricardo/dicerace/game/directory"
	"github.com/wricardo/dicerace/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Dice Race",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Dice Race - MCP Interface

This is a thin client that proxies all requests to the REST API server.
Players race along a track by rolling a die in turn; the first to reach the
last cell wins. Play itself happens over the websocket at /ws/{room}.

AVAILABLE TOOLS:
- list_rooms: Lobby listing with player counts and phases
- create_room: Create a room from a preset, optionally overriding its size
- room_state: Players, readiness, positions and whose turn it is
- list_presets: Available room presets
- player_stats: Games, wins and mean game time for a logged in player
- game_rules: How a race is played and the websocket protocol`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List all open rooms",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListRooms)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_room",
		Description: "Create a new room. Sizes left out come from the preset",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"room_id": map[string]interface{}{
					"type":        "string",
					"description": "Room ID (optional, generated when empty)",
				},
				"preset": map[string]interface{}{
					"type":        "string",
					"description": "Preset ID (optional, see list_presets)",
				},
				"max_players": map[string]interface{}{
					"type":        "number",
					"description": "Room capacity (optional)",
				},
				"track_length": map[string]interface{}{
					"type":        "number",
					"description": "Number of cells on the track (optional)",
				},
			},
		},
	}, c.handleCreateRoom)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "room_state",
		Description: "Get the current state of a room",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"room_id": map[string]interface{}{
					"type":        "string",
					"description": "Room ID",
				},
			},
			Required: []string{"room_id"},
		},
	}, c.handleRoomState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_presets",
		Description: "List available room presets",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListPresets)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "player_stats",
		Description: "Get games played, wins and mean game time for the owner of an access token",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"token": map[string]interface{}{
					"type":        "string",
					"description": "Access token returned by POST /api/token",
				},
			},
			Required: []string{"token"},
		},
	}, c.handlePlayerStats)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_rules",
		Description: "Get the rules of a race and the websocket protocol",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleGameRules)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path, token string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

// Tool handlers

func (c *Client) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var rooms []directory.Summary
	if err := c.apiCall(ctx, "GET", "/api/rooms", "", nil, &rooms); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(rooms) == 0 {
		return mcp.NewToolResultText("No open rooms. Use create_room to start one."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Open Rooms (%d):\n\n", len(rooms))
	for _, r := range rooms {
		fmt.Fprintf(&b, "- %s: %d/%d players, track %d, %s\n",
			r.ID, r.CurrentCount, r.MaxPlayers, r.TrackLength, r.Phase)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleCreateRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	req := service.CreateRoomRequest{}
	req.ID, _ = args["room_id"].(string)
	req.Preset, _ = args["preset"].(string)
	if v, ok := args["max_players"].(float64); ok {
		req.MaxPlayers = int(v)
	}
	if v, ok := args["track_length"].(float64); ok {
		req.TrackLength = int(v)
	}

	var info roomInfo
	if err := c.apiCall(ctx, "POST", "/api/rooms", "", req, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created room: %s\nCapacity: %d players\nTrack: %d cells\nJoin at /ws/%s\n",
		info.ID, info.MaxPlayers, info.TrackLength, info.ID)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleRoomState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roomID, _ := arguments(request)["room_id"].(string)
	if roomID == "" {
		return mcp.NewToolResultError("room_id is required"), nil
	}

	var info roomInfo
	if err := c.apiCall(ctx, "GET", "/api/rooms/"+roomID, "", nil, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRoom(&info)), nil
}

func (c *Client) handleListPresets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var presets []config.PresetInfo
	if err := c.apiCall(ctx, "GET", "/api/presets", "", nil, &presets); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available Presets:\n\n")
	for _, p := range presets {
		fmt.Fprintf(&b, "- %s: %s (%d players, track %d)", p.PresetID, p.Name, p.MaxPlayers, p.TrackLength)
		if p.Description != "" {
			fmt.Fprintf(&b, " - %s", p.Description)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handlePlayerStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, _ := arguments(request)["token"].(string)
	if token == "" {
		return mcp.NewToolResultError("token is required"), nil
	}

	var account struct {
		Username        string  `json:"username"`
		Games           int     `json:"games"`
		Wins            int     `json:"wins"`
		MeanGameSeconds float64 `json:"mean_game_seconds"`
	}
	if err := c.apiCall(ctx, "GET", "/api/account", token, nil, &account); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Player: %s\nGames: %d\nWins: %d\nMean game time: %.0f s\n",
		account.Username, account.Games, account.Wins, account.MeanGameSeconds)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGameRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(`DICE RACE RULES

1. Log in (POST /api/token) and open a websocket to /ws/{room}.
2. In the lobby send READY_TOGGLE. When every player is ready the race starts
   and the first player to join rolls first.
3. On your turn send ROLL_DICE. You move forward by the roll (1-6); the turn
   passes to the next player in join order.
4. Reaching or passing the last cell wins. Positions are clamped to the finish.
5. If a match drops below two players it is abandoned without a winner.

SERVER FRAMES
PLAYERLIST:a,b                 players in turn order
READY_STATUS:a:ready,b:not_ready
PLAYER_POSITIONS:a:3,b:0
GAME_START:a                   race started, a rolls first
DICE_ROLL:a:4                  a rolled a 4
TURN_CHANGE:b                  b's turn
WIN:a                          a won
Any other text is chat or a notice.`), nil
}

// roomInfo mirrors the JSON of GET /api/rooms/{id}.
type roomInfo struct {
	ID          string `json:"id"`
	Phase       string `json:"phase"`
	Turn        string `json:"turn"`
	Winner      string `json:"winner"`
	MaxPlayers  int    `json:"max_players"`
	TrackLength int    `json:"track_length"`
	Players     []struct {
		Name     string `json:"name"`
		Ready    bool   `json:"ready"`
		Position int    `json:"position"`
	} `json:"players"`
	Connected []string `json:"connected"`
}

func formatRoom(info *roomInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Room %s (%s)\n", info.ID, info.Phase)
	fmt.Fprintf(&b, "Players: %d/%d, track %d cells (finish at %d)\n",
		len(info.Players), info.MaxPlayers, info.TrackLength, info.TrackLength-1)

	for _, p := range info.Players {
		status := "not ready"
		if p.Ready {
			status = "ready"
		}
		marker := " "
		if p.Name == info.Turn {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s %s at %d (%s)\n", marker, p.Name, p.Position, status)
	}

	if info.Turn != "" {
		fmt.Fprintf(&b, "Turn: %s\n", info.Turn)
	}
	if info.Winner != "" {
		fmt.Fprintf(&b, "Winner: %s\n", info.Winner)
	}
	if len(info.Connected) > 0 {
		fmt.Fprintf(&b, "Connected: %s\n", strings.Join(info.Connected, ", "))
	}
	return b.String()
}
