package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/board"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/database"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/events"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/service"
)

func boardCommand() *cli.Command {
	project := &cli.StringFlag{
		Name:     "project",
		Aliases:  []string{"p"},
		Usage:    "Project id",
		Required: true,
	}

	return &cli.Command{
		Name:  "board",
		Usage: "Show and move cards on a project board",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Render the board of a project",
				Flags: []cli.Flag{
					project,
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Keep rendering as events arrive (needs --redis-url to see other instances)",
					},
					&cli.IntFlag{
						Name:  "width",
						Value: 28,
						Usage: "Column width in characters",
					},
				},
				Action: runBoardShow,
			},
			{
				Name:  "move",
				Usage: "Move a card to another column",
				Flags: []cli.Flag{
					project,
					&cli.StringFlag{Name: "task", Aliases: []string{"t"}, Usage: "Task id", Required: true},
					&cli.StringFlag{Name: "to", Usage: "Target status", Required: true},
					&cli.StringFlag{Name: "from", Usage: "Source status (defaults to the card's column)"},
					&cli.StringFlag{Name: "actor", Aliases: []string{"a"}, Usage: "Acting employee id", Required: true, EnvVars: []string{"TASKFLOW_ACTOR"}},
					&cli.StringFlag{Name: "note", Usage: "History note"},
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Do not ask for confirmation"},
				},
				Action: runBoardMove,
			},
		},
	}
}

func runBoardShow(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(c, false)
	if err != nil {
		return err
	}
	defer be.Close()

	bus := events.NewBus(events.WithLogger(slog.Default()))
	defer bus.Close()

	coordinator, err := be.coordinator(c, service.WithPublisher(bus))
	if err != nil {
		return err
	}

	projectID := c.String("project")
	title, err := boardTitle(ctx, be.directory, projectID)
	if err != nil {
		return err
	}

	projection := board.NewProjection(projectID, coordinator, coordinator)
	sub := bus.Subscribe(projectID)
	defer sub.Close()
	if err := projection.Load(ctx); err != nil {
		return err
	}

	width := c.Int("width")
	render := func() error {
		_, err := fmt.Fprintln(c.App.Writer, board.Render(title, projection.Snapshot(), width))
		return err
	}
	if err := render(); err != nil || !c.Bool("watch") {
		return err
	}

	if redisURL := c.String("redis-url"); redisURL != "" {
		client, err := database.NewRedis(ctx, redisURL)
		if err != nil {
			return err
		}
		defer client.Close()

		bridge := events.NewRedisBridge(client, bus, c.String("redis-prefix"), "", slog.Default())
		go func() { _ = bridge.Run(ctx) }()
	}

	seen := sub.Dropped()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if dropped := sub.Dropped(); dropped != seen {
				seen = dropped
				if err := projection.Load(ctx); err != nil {
					return err
				}
			} else {
				projection.Apply(evt)
			}
			if err := render(); err != nil {
				return err
			}
		}
	}
}

func runBoardMove(c *cli.Context) error {
	ctx := c.Context

	be, err := openBackend(c, false)
	if err != nil {
		return err
	}
	defer be.Close()

	coordinator, err := be.coordinator(c)
	if err != nil {
		return err
	}

	var opts []board.Option
	if !c.Bool("yes") {
		opts = append(opts, board.WithConfirmer(promptConfirmer(c.App.Reader, c.App.Writer)))
	}
	projection := board.NewProjection(c.String("project"), coordinator, coordinator, opts...)
	if err := projection.Load(ctx); err != nil {
		return err
	}

	taskID := c.String("task")
	card, found := projection.Task(taskID)
	if !found {
		return fmt.Errorf("%w: %s is not on board %s", domain.ErrTaskNotFound, taskID, c.String("project"))
	}

	source := domain.TaskStatus(c.String("from"))
	if source == "" {
		source = card.Status
	}

	task, err := projection.Drop(ctx, board.Move{
		TaskID:  taskID,
		Source:  source,
		Target:  domain.TaskStatus(c.String("to")),
		ActorID: c.String("actor"),
		Note:    c.String("note"),
	})
	switch {
	case errors.Is(err, board.ErrMoveCancelled):
		_, err = fmt.Fprintln(c.App.Writer, "move cancelled")
		return err
	case errors.Is(err, domain.ErrNoOpOrStaleState) && task != nil:
		return fmt.Errorf("%s is now in %q; nothing was moved: %w", task.Code, task.Status, err)
	case err != nil:
		return err
	case task == nil:
		_, err = fmt.Fprintln(c.App.Writer, "card is already in that column")
		return err
	}

	_, err = fmt.Fprintf(c.App.Writer, "%s moved to %s\n", task.Code, task.Status)
	return err
}

// promptConfirmer asks on w and reads a y/N answer from r.
func promptConfirmer(r io.Reader, w io.Writer) board.Confirmer {
	reader := bufio.NewReader(r)
	return board.ConfirmFunc(func(_ context.Context, move board.Move, task *domain.Task) (bool, error) {
		name := move.TaskID
		if task != nil {
			name = task.Code + " " + task.Name
		}
		if _, err := fmt.Fprintf(w, "Move %s from %q to %q? [y/N] ", name, move.Source, move.Target); err != nil {
			return false, err
		}

		answer, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, fmt.Errorf("read answer: %w", err)
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes", nil
	})
}

// boardTitle renders "CODE · Name" for a project.
func boardTitle(ctx context.Context, directory service.Directory, projectID string) (string, error) {
	project, err := directory.GetProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	return project.Code + " · " + project.Name, nil
}
