// Package main provides the loom binary entry point.
// Loom is a typed dependency graph and workflow engine for
// collaborative work management: plans, tasks, workflows, and the
// playbooks that pour them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	"github.com/loomworks/loom/audit"
	"github.com/loomworks/loom/config"
	"github.com/loomworks/loom/dependency"
	"github.com/loomworks/loom/derive"
	"github.com/loomworks/loom/element"
	"github.com/loomworks/loom/engine"
	"github.com/loomworks/loom/playbook"
	"github.com/loomworks/loom/pour"
	"github.com/loomworks/loom/store"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "loom"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "loom",
		Short: "Typed dependency graph and workflow engine",
		Long: `Loom manages plans, tasks, workflows, and entities as a typed
dependency graph. Scheduling and containment edges are validated for
cycles on every write, readiness and progress are derived from the
graph, and playbook templates pour into ready-to-run workflows.`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	cmd.AddCommand(
		pourCmd(&configPath, &logLevel),
		depCmd(&configPath, &logLevel),
		readyCmd(&configPath, &logLevel),
		blockedCmd(&configPath, &logLevel),
		progressCmd(&configPath, &logLevel),
		chainCmd(&configPath, &logLevel),
		playbooksCmd(&configPath, &logLevel),
		planCmd(&configPath, &logLevel),
		taskCmd(&configPath, &logLevel),
		workflowCmd(&configPath, &logLevel),
		entityCmd(&configPath, &logLevel),
	)
	return cmd
}

// app holds the wired collaborators a command needs.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   store.Store
	graph   *dependency.Graph
	calc    *derive.Calculator
	manager *engine.Manager
	library *playbook.Library

	nc      *nats.Conn
	closers []func() error
}

func newApp(ctx context.Context, configPath, logLevel string) (*app, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		if cfg, err = config.LoadFromFile(configPath); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	} else {
		if cfg, err = config.NewLoader(nil).Load(); err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}

	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name(appName))
		if err != nil {
			return nil, fmt.Errorf("connect NATS: %w", err)
		}
		a.nc = nc
		a.closers = append(a.closers, func() error { nc.Close(); return nil })
	}

	switch cfg.Store.Driver {
	case "memory":
		a.store = store.NewMemory()
	case "sqlite":
		db, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.store = db
		a.closers = append(a.closers, db.Close)
	case "nats":
		js, err := jetstream.New(a.nc)
		if err != nil {
			return nil, fmt.Errorf("jetstream: %w", err)
		}
		kv, err := store.NewKV(ctx, js)
		if err != nil {
			return nil, fmt.Errorf("open kv store: %w", err)
		}
		a.store = kv
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	recorder := audit.Recorder(audit.NewPublisher(a.nc, "loom.audit"))
	a.graph = dependency.New(a.store, a.store, recorder, logger)
	if err := a.graph.Load(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("load graph: %w", err)
	}
	a.calc = derive.New(a.store, a.store, a.store, a.graph, logger)
	a.manager = engine.New(a.store, a.graph, a.calc, recorder, logger)

	a.library = playbook.NewLibrary(cfg.Playbooks.Dir, logger)
	if err := a.library.Discover(); err != nil {
		logger.Warn("playbook discovery failed", "dir", cfg.Playbooks.Dir, "error", err)
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// withApp wraps a command body with app construction, signal handling,
// and teardown.
func withApp(configPath, logLevel *string, body func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, *configPath, *logLevel)
		if err != nil {
			return err
		}
		defer a.close()
		return body(ctx, a, args)
	}
}

func pourCmd(configPath, logLevel *string) *cobra.Command {
	var (
		vars    []string
		durable bool
		tags    []string
		actor   string
	)
	cmd := &cobra.Command{
		Use:   "pour <playbook-id>",
		Short: "Instantiate a playbook into a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, logLevel, func(ctx context.Context, a *app, args []string) error {
			pb, ok := a.library.Get(args[0])
			if !ok {
				return fmt.Errorf("playbook %q not found in %s", args[0], a.cfg.Playbooks.Dir)
			}
			bindings, err := parseBindings(vars)
			if err != nil {
				return err
			}
			opts := pour.Options{Ephemeral: !durable, Tags: tags}
			result, err := a.manager.PourPlaybook(ctx, pb, bindings, actor, opts)
			if err != nil {
				return err
			}
			fmt.Printf("poured %s (%d tasks", result.Workflow.ID, len(result.Tasks))
			if len(result.SkippedSteps) > 0 {
				fmt.Printf(", skipped %s", strings.Join(result.SkippedSteps, ", "))
			}
			fmt.Println(")")
			for _, task := range result.Tasks {
				fmt.Printf("  %s  %s\n", task.ID, task.Title)
			}
			return nil
		}),
	}
	cmd.Flags().StringArrayVar(&vars, "var", nil, "Variable binding key=value (repeatable)")
	cmd.Flags().BoolVar(&durable, "durable", false, "Pour a durable workflow instead of an ephemeral one")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "Tag for the workflow and its tasks (repeatable)")
	cmd.Flags().StringVar(&actor, "actor", defaultActor(), "Acting user recorded on created elements")
	return cmd
}

func depCmd(configPath, logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dep",
		Short: "Manage dependency edges",
	}

	var addType, actor string
	add := &cobra.Command{
		Use:   "add <source-id> <target-id>",
		Short: "Add a typed dependency edge",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(configPath, logLevel, func(ctx context.Context, a *app, args []string) error {
			dep, err := a.graph.Add(ctx, args[0], args[1], dependency.Type(addType), nil, actor)
			if err != nil {
				return err
			}
			fmt.Printf("added %s\n", dep)
			return nil
		}),
	}
	add.Flags().StringVar(&addType, "type", string(dependency.TypeBlocks), "Edge type")
	add.Flags().StringVar(&actor, "actor", defaultActor(), "Acting user recorded on the edge")

	var rmType, rmActor string
	rm := &cobra.Command{
		Use:   "rm <source-id> <target-id>",
		Short: "Remove a dependency edge",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(configPath, logLevel, func(ctx context.Context, a *app, args []string) error {
			return a.graph.Remove(ctx, args[0], args[1], dependency.Type(rmType), rmActor)
		}),
	}
	rm.Flags().StringVar(&rmType, "type", string(dependency.TypeBlocks), "Edge type")
	rm.Flags().StringVar(&rmActor, "actor", defaultActor(), "Acting user recorded on the removal")

	var incoming bool
	ls := &cobra.Command{
		Use:   "ls <element-id>",
		Short: "List edges touching an element",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, logLevel, func(ctx context.Context, a *app, args []string) error {
			edges := a.graph.GetOutgoing(args[0])
			if incoming {
				edges = a.graph.GetIncoming(args[0])
			}
			for _, edge := range edges {
				fmt.Println(edge)
			}
			return nil
		}),
	}
	ls.Flags().BoolVar(&incoming, "incoming", false, "List incoming edges instead of outgoing")

	cmd.AddCommand(add, rm, ls)
	return cmd
}

func readyCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "List tasks with no unresolved blockers",
		Args:  cobra.NoArgs,
		RunE: withApp(configPath, logLevel, func(ctx context.Context, a *app, args []string) error {
			tasks, err := a.calc.Ready(ctx)
			if err != nil {
				return err
			}
			printTasks(tasks)
			return nil
		}),
	}
}

func blockedCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "blocked",
		Short: "List tasks waiting on unresolved blockers",
		Args:  cobra.NoArgs,
		RunE: withApp(configPath, logLevel, func(ctx context.Context, a *app, args []string) error {
			tasks, err := a.calc.Blocked(ctx)
			if err != nil {
				return err
			}
			printTasks(tasks)
			return nil
		}),
	}
}

func progressCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <plan-id|workflow-id>",
		Short: "Show a container's task roll-up",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, logLevel, func(ctx context.Context, a *app, args []string) error {
			typ, err := element.ParseID(args[0])
			if err != nil {
				return err
			}

			var p *derive.Progress
			switch typ {
			case element.TypePlan:
				p, err = a.calc.PlanProgress(ctx, args[0])
			case element.TypeWorkflow:
				p, err = a.calc.WorkflowProgress(ctx, args[0])
			default:
				return fmt.Errorf("%s is not a plan or workflow", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Printf("total %d  closed %d  in-progress %d  open %d  blocked %d  cancelled %d  %.0f%%\n",
				p.Total, p.Closed, p.InProgress, p.Open, p.Blocked, p.Cancelled, p.PercentComplete*100)
			return nil
		}),
	}
}

func chainCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chain <entity-id>",
		Short: "Show an entity's management chain, nearest manager first",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, logLevel, func(ctx context.Context, a *app, args []string) error {
			chain, err := a.calc.ManagementChain(ctx, args[0])
			if err != nil {
				return err
			}
			for i, entity := range chain {
				fmt.Printf("%d. %s  %s (%s)\n", i+1, entity.ID, entity.Name, entity.Kind)
			}
			return nil
		}),
	}
}

func playbooksCmd(configPath, logLevel *string) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "playbooks",
		Short: "List discovered playbooks",
		Args:  cobra.NoArgs,
		RunE: withApp(configPath, logLevel, func(ctx context.Context, a *app, args []string) error {
			printLibrary(a.library)
			if !watch {
				return nil
			}

			watcher := playbook.NewWatcher(a.library, a.cfg.Playbooks.Debounce, a.logger)
			go func() {
				for range watcher.Reloaded {
					printLibrary(a.library)
				}
			}()
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep watching the playbook directory and reprint on change")
	return cmd
}

func printLibrary(library *playbook.Library) {
	for _, pb := range library.List() {
		fmt.Printf("%s  %s (%d steps)\n", pb.ID, pb.Name, len(pb.Steps))
	}
}

func planCmd(configPath, logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage plans",
	}

	var taskTitles []string
	var actor string
	create := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a plan with its initial tasks",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, logLevel, func(ctx context.Context, a *app, args []string) error {
			specs := make([]engine.TaskSpec, len(taskTitles))
			for i, title := range taskTitles {
				specs[i] = engine.TaskSpec{Title: title}
			}
			plan, tasks, err := a.manager.CreatePlan(ctx, args[0], actor, specs)
			if err != nil {
				return err
			}
			fmt.Printf("created %s\n", plan.ID)
			printTasks(tasks)
			return nil
		}),
	}
	create.Flags().StringArrayVar(&taskTitles, "task", nil, "Initial task title (repeatable, at least one required)")
	create.Flags().StringVar(&actor, "actor", defaultActor(), "Acting user recorded on created elements")

	var addActor string
	addTask := &cobra.Command{
		Use:   "add-task <plan-id> <title>",
		Short: "Add a task to a plan",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(configPath, logLevel, func(ctx context.Context, a *app, args []string) error {
			task, err := a.manager.AddTask(ctx, args[0], engine.TaskSpec{Title: args[1]}, addActor)
			if err != nil {
				return err
			}
			fmt.Printf("added %s\n", task.ID)
			return nil
		}),
	}
	addTask.Flags().StringVar(&addActor, "actor", defaultActor(), "Acting user recorded on the task")

	var rmActor string
	rmTask := &cobra.Command{
		Use:   "rm-task <plan-id> <task-id>",
		Short: "Remove a task from a plan",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(configPath, logLevel, func(ctx context.Context, a *app, args []string) error {
			return a.manager.RemoveTask(ctx, args[0], args[1], rmActor)
		}),
	}
	rmTask.Flags().StringVar(&rmActor, "actor", defaultActor(), "Acting user recorded on the removal")

	cmd.AddCommand(create, addTask, rmTask)
	return cmd
}

func taskCmd(configPath, logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}

	var actor string
	status := &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Transition a task's lifecycle status",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(configPath, logLevel, func(ctx context.Context, a *app, args []string) error {
			return a.manager.SetTaskStatus(ctx, args[0], element.TaskStatus(args[1]), actor)
		}),
	}
	status.Flags().StringVar(&actor, "actor", defaultActor(), "Acting user recorded on the transition")

	cmd.AddCommand(status)
	return cmd
}

func workflowCmd(configPath, logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflows",
	}

	var force bool
	var burnActor string
	burn := &cobra.Command{
		Use:   "burn <workflow-id>",
		Short: "Hard-delete a workflow and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, logLevel, func(ctx context.Context, a *app, args []string) error {
			return a.manager.Burn(ctx, args[0], force, burnActor)
		}),
	}
	burn.Flags().BoolVar(&force, "force", false, "Burn even if the workflow is durable")
	burn.Flags().StringVar(&burnActor, "actor", defaultActor(), "Acting user recorded on the burn")

	var squashActor string
	squash := &cobra.Command{
		Use:   "squash <workflow-id>",
		Short: "Promote an ephemeral workflow to durable",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, logLevel, func(ctx context.Context, a *app, args []string) error {
			return a.manager.Squash(ctx, args[0], squashActor)
		}),
	}
	squash.Flags().StringVar(&squashActor, "actor", defaultActor(), "Acting user recorded on the squash")

	cmd.AddCommand(burn, squash)
	return cmd
}

func entityCmd(configPath, logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Manage entities",
	}

	var actor string
	setManager := &cobra.Command{
		Use:   "set-manager <entity-id> <manager-id>",
		Short: "Point an entity's reporting line at a manager",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(configPath, logLevel, func(ctx context.Context, a *app, args []string) error {
			return a.manager.SetManager(ctx, args[0], args[1], actor)
		}),
	}
	setManager.Flags().StringVar(&actor, "actor", defaultActor(), "Acting user recorded on the assignment")

	cmd.AddCommand(setManager)
	return cmd
}

func printTasks(tasks []*element.Task) {
	for _, task := range tasks {
		fmt.Printf("%s  [%s]  %s\n", task.ID, task.Status, task.Title)
	}
}

func parseBindings(pairs []string) (map[string]string, error) {
	bindings := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("bad --var %q, want key=value", pair)
		}
		bindings[key] = value
	}
	return bindings, nil
}

func defaultActor() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "loom"
}
