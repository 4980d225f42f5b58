package main

import (
	"context"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/rhyrak/go-allocate/internal/app"
	"github.com/rhyrak/go-allocate/internal/config"
	"github.com/rhyrak/go-allocate/internal/logging"
	"github.com/rhyrak/go-allocate/pkg/model"
)

var (
	version string

	cli = kingpin.New("allocate", "Schedule presentations and match students to projects")

	debug     = cli.Flag("debug", "enable debug logging").Short('d').Bool()
	configDir = cli.Flag("config-dir", "directory holding .env.<env> files").Default(".").String()
	env       = cli.Flag("env", "environment name").Envar("ALLOCATE_ENV").String()

	schedule          = cli.Command("schedule", "schedule talks and assessors into slots")
	scheduleInput     = schedule.Arg("input", "snapshot directory").Required().ExistingDir()
	scheduleBackend   = schedule.Flag("backend", "solver backend").String()
	schedulePrior     = schedule.Flag("prior", "attempt whose placements to stay close to").String()
	schedulePriorFile = schedule.Flag("prior-placements", "placements CSV to stay close to").ExistingFile()
	schedulePin       = schedule.Flag("no-new-targets", "only use slots the prior placements used").Bool()
	scheduleOut       = schedule.Flag("out", "placements CSV to write").Short('o').String()

	match          = cli.Command("match", "match students to projects and markers")
	matchInput     = match.Arg("input", "snapshot directory").Required().ExistingDir()
	matchBackend   = match.Flag("backend", "solver backend").String()
	matchPrior     = match.Flag("prior", "attempt whose placements to stay close to").String()
	matchPriorFile = match.Flag("prior-placements", "placements CSV to stay close to").ExistingFile()
	matchPin       = match.Flag("no-new-targets", "only use projects the prior placements used").Bool()
	matchOut       = match.Flag("out", "placements CSV to write").Short('o').String()

	export      = cli.Command("export", "write LP and MPS models for an offline solve")
	exportKind  = export.Arg("kind", "scheduling or matching").Required().Enum(string(model.KindScheduling), string(model.KindMatching))
	exportInput = export.Arg("input", "snapshot directory").Required().ExistingDir()
	exportOut   = export.Flag("out", "directory to write the files to").Short('o').Default(".").String()

	importCmd         = cli.Command("import", "read a solution file for an offline attempt")
	importSolution    = importCmd.Arg("solution", "solution file").Required().ExistingFile()
	importAttempt     = importCmd.Flag("attempt", "attempt id in a persistent store").String()
	importKind        = importCmd.Flag("kind", "scheduling or matching").Enum(string(model.KindScheduling), string(model.KindMatching))
	importInput       = importCmd.Flag("input", "snapshot directory").ExistingDir()
	importEnumeration = importCmd.Flag("enumeration", "enumeration CSV written by export").ExistingFile()
	importOut         = importCmd.Flag("out", "placements CSV to write").Short('o').String()

	purge = cli.Command("purge", "delete enumerations of finished attempts")

	revert        = cli.Command("revert", "restore the placements an attempt was solved with")
	revertAttempt = revert.Arg("attempt", "attempt id").Required().String()

	show        = cli.Command("show", "print an attempt and its placements")
	showAttempt = show.Arg("attempt", "attempt id").Required().String()
)

func main() {
	cli.Version(version)
	cli.HelpFlag.Short('h')
	cmd := kingpin.MustParse(cli.Parse(os.Args[1:]))

	cfg, err := config.Load(*configDir, *env)
	if err != nil {
		log.WithError(err).Fatal("Cannot load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	logging.Configure(cfg.LogLevel, cfg.LogJSON)
	logging.ConfigureRollbar(logging.RollbarConfig{
		Token:       cfg.Rollbar.Token,
		Environment: cfg.Env,
		CodeVersion: version,
	})
	defer logging.Close()

	a, err := app.New(cfg, "/")
	if err != nil {
		log.WithError(err).Fatal("Cannot initialize components")
	}
	defer a.Close()

	ctx := context.Background()
	c := &client{app: a, out: os.Stdout}
	switch cmd {
	case schedule.FullCommand():
		err = c.solveAction(ctx, model.KindScheduling, *scheduleInput, solveOptions{
			backend:   *scheduleBackend,
			prior:     *schedulePrior,
			priorFile: *schedulePriorFile,
			pin:       *schedulePin,
			out:       *scheduleOut,
		})
	case match.FullCommand():
		err = c.solveAction(ctx, model.KindMatching, *matchInput, solveOptions{
			backend:   *matchBackend,
			prior:     *matchPrior,
			priorFile: *matchPriorFile,
			pin:       *matchPin,
			out:       *matchOut,
		})
	case export.FullCommand():
		err = c.exportAction(ctx, model.Kind(*exportKind), *exportInput, *exportOut)
	case importCmd.FullCommand():
		err = c.importAction(ctx, *importSolution, importOptions{
			attemptID:   *importAttempt,
			kind:        model.Kind(*importKind),
			input:       *importInput,
			enumeration: *importEnumeration,
			out:         *importOut,
		})
	case purge.FullCommand():
		err = c.purgeAction(ctx)
	case revert.FullCommand():
		err = c.revertAction(ctx, *revertAttempt)
	case show.FullCommand():
		err = c.showAction(ctx, *showAttempt, "")
	default:
		cli.Fatalf("Unknown command %s", cmd)
	}
	if err != nil {
		log.WithError(err).Fatal("Command failed")
	}
}
