package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/samber/lo"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/cwrk-planet/canvas-rooms/config"
	"github.com/cwrk-planet/canvas-rooms/internal/connection"
	"github.com/cwrk-planet/canvas-rooms/internal/directory"
	"github.com/cwrk-planet/canvas-rooms/internal/domain"
	"github.com/cwrk-planet/canvas-rooms/internal/identity"
	"github.com/cwrk-planet/canvas-rooms/internal/logger"
	"github.com/cwrk-planet/canvas-rooms/internal/protocol"
	"github.com/cwrk-planet/canvas-rooms/internal/realtime"
	"github.com/cwrk-planet/canvas-rooms/internal/realtime/wsrelay"
	"github.com/cwrk-planet/canvas-rooms/internal/upload"
)

type options struct {
	api       string
	uploadURL string
	room      string
	capacity  int
	identity  string
	codec     string
	place     string
	image     string
	prompt    string
	debug     bool
}

func main() {
	var o options
	flag.StringVar(&o.api, "api", "http://localhost:8080", "relay base url")
	flag.StringVar(&o.uploadURL, "upload", "", "upload service base url (default: --api)")
	flag.StringVar(&o.room, "room", "", "room id to join; empty picks the first room below capacity")
	flag.IntVar(&o.capacity, "capacity", config.Default().Canvas.MaxOccupants, "max occupants per room")
	flag.StringVar(&o.identity, "identity", "", "bbolt file keeping the user id (empty: ephemeral id)")
	flag.StringVar(&o.codec, "codec", protocol.CodecJSON, "wire codec: json|cbor")
	flag.StringVar(&o.place, "place", "", "place an artifact at canvas point x,y")
	flag.StringVar(&o.image, "image", "", "jpeg file to upload with --place")
	flag.StringVar(&o.prompt, "prompt", "", "prompt stored with the artifact")
	flag.BoolVar(&o.debug, "debug", false, "verbose logs")
	flag.Parse()

	logger.Init(logger.Config{Service: "canvas-bot", Env: logger.EnvDev, Debug: o.debug})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("canvas-bot failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) error {
	userID, err := loadIdentity(o.identity)
	if err != nil {
		return err
	}

	dir := directory.New(directory.NewHTTPLister(o.api, nil), directory.DefaultInterval)
	roomID, ok, err := dir.Resolve(ctx, o.room, o.capacity)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrCapacityExhausted
	}

	codec, err := protocol.ByName(o.codec)
	if err != nil {
		return err
	}
	rel, err := wsrelay.New(o.api, codec)
	if err != nil {
		return err
	}

	cfg := config.Default()
	conn, err := realtime.Connect(realtime.Options{
		Room:    roomID,
		UserID:  userID,
		Relay:   rel,
		Backoff: cfg.Reconnect.ToBackoff(),
		Canvas:  cfg.Canvas.Mapper(),
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	log := slog.With("room", roomID, "user", userID)
	log.Info("joining room", "codec", codec.Name())
	ended := watch(conn, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dir.Run(gctx) })
	g.Go(func() error {
		select {
		case err := <-ended:
			return err
		case <-gctx.Done():
			return gctx.Err()
		}
	})
	if o.place != "" {
		g.Go(func() error { return place(gctx, conn, o, log) })
	}
	return g.Wait()
}

func loadIdentity(path string) (string, error) {
	if path == "" {
		return identity.Load(&identity.MemoryStore{})
	}
	store, err := identity.Open(path)
	if err != nil {
		return "", err
	}
	defer store.Close()
	return identity.Load(store)
}

// watch логирует события комнаты; канал получает ошибку, когда соединение
// остановилось само и переподключаться больше не будет.
func watch(conn *realtime.Connection, log *slog.Logger) <-chan error {
	onEnd, ended := sessionEnd()
	conn.OnState(func(from, to connection.State) {
		log.Info("connection state", "from", from, "to", to)
		onEnd(from, to)
	})
	conn.OnError(func(err error) {
		log.Warn("connection error", "err", err)
	})
	conn.Presence().Subscribe(func(peers []realtime.Peer) {
		users := lo.Uniq(lo.Map(peers, func(p realtime.Peer, _ int) string { return p.UserID }))
		log.Info("peers", "count", len(peers), "users", users)
	})
	conn.Artifacts().Subscribe(func(list []domain.Artifact) {
		log.Info("artifacts", "count", len(list))
	})
	conn.Broadcast().Subscribe(func(ev realtime.BroadcastEvent) {
		log.Debug("broadcast", "from", ev.ConnectionID, "payload", ev.Payload)
	})
	return ended
}

func sessionEnd() (func(from, to connection.State), <-chan error) {
	ch := make(chan error, 1)
	return func(_, to connection.State) {
		if !to.Terminal() {
			return
		}
		err := realtime.ErrConnectionClosed
		if to == connection.StateFailed {
			err = fmt.Errorf("connection %s: %w", to, domain.ErrAuthRejected)
		}
		select {
		case ch <- err:
		default:
		}
	}, ch
}

func place(ctx context.Context, conn *realtime.Connection, o options, log *slog.Logger) error {
	x, y, err := parsePoint(o.place)
	if err != nil {
		return err
	}
	if o.image == "" {
		return errors.New("--place requires --image")
	}
	img, err := os.ReadFile(o.image)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	base := o.uploadURL
	if base == "" {
		base = o.api
	}

	conn.Presence().SetPresence(realtime.WithStatus(domain.StatusLoading), realtime.WithPrompt(o.prompt))
	upCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	a, err := conn.Artifacts().Place(upCtx, upload.NewClient(base, nil), realtime.PlaceRequest{
		Prompt: o.prompt,
		Image:  img,
		X:      x,
		Y:      y,
	})
	if err != nil {
		conn.Presence().SetPresence(realtime.WithStatus(domain.StatusReady))
		return err
	}
	conn.Presence().SetPresence(realtime.WithStatus(domain.StatusReady), realtime.WithPrompt(""))
	log.Info("artifact placed", "id", a.ID, "x", a.Position.X, "y", a.Position.Y, "url", a.ImageURL)
	return nil
}

func parsePoint(s string) (x, y float64, err error) {
	xs, ys, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, fmt.Errorf("point %q: want x,y", s)
	}
	if x, err = strconv.ParseFloat(strings.TrimSpace(xs), 64); err != nil {
		return 0, 0, fmt.Errorf("point %q: %w", s, err)
	}
	if y, err = strconv.ParseFloat(strings.TrimSpace(ys), 64); err != nil {
		return 0, 0, fmt.Errorf("point %q: %w", s, err)
	}
	return x, y, nil
}
