package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/adwski/scribble-client/client/model"
	"github.com/adwski/scribble-client/client/stroke"
	"github.com/rs/zerolog"
)

const (
	defaultColor     = 0x000000
	defaultThickness = 3
	maxThickness     = 50
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrBadArguments   = errors.New("bad command arguments")
)

type Kind int

const (
	KindChat Kind = iota
	KindPlay
	KindCreate
	KindJoin
	KindLine
	KindColor
	KindWidth
	KindClear
	KindReconnect
	KindHome
	KindLeave
	KindQuit
	KindHelp
)

// Command is one parsed input line.
type Command struct {
	Kind  Kind
	Text  string
	Line  [4]float64
	Color uint32
	Width int
}

type (
	// Actions are the session intents reachable from the keyboard.
	Actions interface {
		PlayNow() error
		CreateRoom() error
		JoinRoom(code string) error
		SendChat(message string) error
		ClearCanvas() error
		Reconnect(ctx context.Context) error
		ReturnHome() error
		Leave()
	}

	Drawer interface {
		Draw(seg stroke.Segment) (model.Stroke, bool)
	}

	Config struct {
		Logger  *zerolog.Logger
		In      io.Reader
		Sink    *Sink
		Actions Actions
		Drawer  Drawer
		// OnQuit is called once input ends or /quit is typed.
		OnQuit func()
	}

	// Input reads commands from a line oriented reader.
	Input struct {
		in      io.Reader
		sink    *Sink
		actions Actions
		drawer  Drawer
		onQuit  func()

		color     uint32
		thickness int

		logger zerolog.Logger
	}
)

const helpText = `commands:
  /play               join any open room
  /create             create a private room
  /join CODE          join a room by its 6 character code
  /line x1 y1 x2 y2   draw a segment (drawer only)
  /color N            pen color, e.g. #ff0000 or 0xff0000
  /width N            pen width 1-50
  /clear              clear the canvas (drawer only)
  /reconnect          retry after the connection was lost
  /home               back to the lobby after a game
  /leave              leave the game
  /quit               exit
anything else is sent as chat or a guess`

func NewInput(cfg Config) *Input {
	in := &Input{
		in:        cfg.In,
		sink:      cfg.Sink,
		actions:   cfg.Actions,
		drawer:    cfg.Drawer,
		onQuit:    cfg.OnQuit,
		color:     defaultColor,
		thickness: defaultThickness,
		logger:    cfg.Logger.With().Str("component", "console").Logger(),
	}
	if in.onQuit == nil {
		in.onQuit = func() {}
	}
	return in
}

// Parse turns one input line into a command.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return Command{Kind: KindChat, Text: line}, nil
	}
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]
	var cmd Command

	switch name {
	case "/play":
		cmd.Kind = KindPlay
	case "/create":
		cmd.Kind = KindCreate
	case "/join":
		if len(args) != 1 {
			return cmd, fmt.Errorf("%w: /join CODE", ErrBadArguments)
		}
		cmd.Kind, cmd.Text = KindJoin, args[0]
	case "/line":
		if len(args) != 4 {
			return cmd, fmt.Errorf("%w: /line x1 y1 x2 y2", ErrBadArguments)
		}
		for i, a := range args {
			v, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return cmd, errors.Join(ErrBadArguments, err)
			}
			cmd.Line[i] = v
		}
		cmd.Kind = KindLine
	case "/color":
		if len(args) != 1 {
			return cmd, fmt.Errorf("%w: /color N", ErrBadArguments)
		}
		c, err := strconv.ParseUint(strings.Replace(args[0], "#", "0x", 1), 0, 32)
		if err != nil || c > 0xffffff {
			return cmd, fmt.Errorf("%w: color %q", ErrBadArguments, args[0])
		}
		cmd.Kind, cmd.Color = KindColor, uint32(c)
	case "/width":
		if len(args) != 1 {
			return cmd, fmt.Errorf("%w: /width N", ErrBadArguments)
		}
		w, err := strconv.Atoi(args[0])
		if err != nil || w < 1 || w > maxThickness {
			return cmd, fmt.Errorf("%w: width %q", ErrBadArguments, args[0])
		}
		cmd.Kind, cmd.Width = KindWidth, w
	case "/clear":
		cmd.Kind = KindClear
	case "/reconnect":
		cmd.Kind = KindReconnect
	case "/home":
		cmd.Kind = KindHome
	case "/leave":
		cmd.Kind = KindLeave
	case "/quit", "/exit":
		cmd.Kind = KindQuit
	case "/help":
		cmd.Kind = KindHelp
	default:
		return cmd, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return cmd, nil
}

// Run reads commands until the reader ends, /quit is typed or ctx is done.
func (in *Input) Run(ctx context.Context) {
	defer in.onQuit()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			in.logger.Error().Err(err).Msg("input read failed")
		}
	}()

Loop:
	for {
		select {
		case <-ctx.Done():
			break Loop
		case line, ok := <-lines:
			if !ok {
				break Loop
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !in.Execute(ctx, line) {
				break Loop
			}
		}
	}
	in.logger.Debug().Msg("input stopped")
}

// Execute runs one line and reports whether input should continue.
func (in *Input) Execute(ctx context.Context, line string) bool {
	cmd, err := Parse(line)
	if err != nil {
		in.sink.ShowNotice(err.Error())
		return true
	}

	switch cmd.Kind {
	case KindQuit:
		return false
	case KindHelp:
		in.sink.printf("%s", helpText)
	case KindColor:
		in.color = cmd.Color
	case KindWidth:
		in.thickness = cmd.Width
	case KindLine:
		seg := stroke.Segment{
			X1: cmd.Line[0], Y1: cmd.Line[1], X2: cmd.Line[2], Y2: cmd.Line[3],
			Color:     in.color,
			Thickness: in.thickness,
		}
		if _, ok := in.drawer.Draw(seg); !ok {
			in.sink.ShowNotice("only the drawer can draw")
		}
	case KindLeave:
		in.actions.Leave()
	default:
		in.report(in.intent(ctx, cmd))
	}
	return true
}

func (in *Input) intent(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case KindPlay:
		return in.actions.PlayNow()
	case KindCreate:
		return in.actions.CreateRoom()
	case KindJoin:
		return in.actions.JoinRoom(cmd.Text)
	case KindClear:
		return in.actions.ClearCanvas()
	case KindReconnect:
		return in.actions.Reconnect(ctx)
	case KindHome:
		return in.actions.ReturnHome()
	default:
		return in.actions.SendChat(cmd.Text)
	}
}

func (in *Input) report(err error) {
	if err != nil {
		in.logger.Debug().Err(err).Msg("intent refused")
		in.sink.ShowNotice(err.Error())
	}
}
