// Command beryl-demo is a minimal host program for the beryl core
// runtime. It plays the role the compiled output of a real program
// would: it creates the global env, installs a small built-in class
// through the registration ABI, drives method dispatch and fibers, and
// reports uncaught exceptions the way the top level does.
//
// The language front end (lexer, parser, compiler) is a separate
// concern; this binary exists to exercise the host-program contract.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/inconshreveable/log15"
	isatty "github.com/mattn/go-isatty"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/beryl-lang/beryl/pkg/runtime"
)

const version = "0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = "beryl-demo"
	app.Usage = "drive the beryl core runtime from a host program"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable $VERBOSE warnings",
		},
		cli.BoolFlag{
			Name:  "gc-stress",
			Usage: "collect on every allocation",
		},
		cli.BoolFlag{
			Name:  "heap-stats",
			Usage: "print the heap size-class table before exiting",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "warn",
			Usage: "runtime log level (debug, info, warn, error)",
		},
	}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	lg := log15.New("module", "beryl")
	lvl, err := log15.LvlFromString(ctx.String("log-level"))
	if err != nil {
		return err
	}
	lg.SetHandler(log15.LvlFilterHandler(lvl, log15.StreamHandler(os.Stderr, log15.TerminalFormat())))

	gl := runtime.New(runtime.Config{
		Verbose:  ctx.Bool("verbose"),
		GCStress: ctx.Bool("gc-stress"),
		Log:      lg,
	})
	e := gl.RootEnv()

	installGreeter(e, gl.ObjectClass)

	status := 0
	result, exc := runtime.Protect(e, program)
	if exc != nil {
		printError(e)
		status = runtime.HandleTopLevelException(e, exc)
	} else {
		fmt.Println(gl.Describe(result))
	}

	if ctx.Bool("heap-stats") {
		gl.GC()
		gl.WriteHeapStats(os.Stdout)
	}
	if status != 0 {
		os.Exit(status)
	}
	return nil
}

// installGreeter registers a tiny built-in class the way an extension
// would: through define_method and define_singleton_method with the
// fixed native signature.
func installGreeter(e *runtime.Env, object *runtime.Object) {
	gl := e.Global()
	greeter := runtime.DefineClass(e, object, "Greeter", nil)

	gl.DefineMethod(greeter, "initialize", func(e *runtime.Env, self runtime.Value, args runtime.Args, block *runtime.Block) runtime.Value {
		args.EnsureArgc(e, 1)
		self.Object().IvarSet(e, gl.Intern("@name"), args.At(0))
		return gl.Nil
	}, -1)

	gl.DefineMethod(greeter, "greeting", func(e *runtime.Env, self runtime.Value, args runtime.Args, block *runtime.Block) runtime.Value {
		name := self.Object().IvarGet(e, gl.Intern("@name"))
		s := runtime.NewString(e, "hello, ")
		runtime.StringAppend(e, s, name)
		return s
	}, 0)

	gl.DefineSingletonMethod(runtime.ObjectValue(greeter), "default", func(e *runtime.Env, self runtime.Value, args runtime.Args, block *runtime.Block) runtime.Value {
		return e.SendName(self, "new", runtime.NewString(e, "world"))
	}, 0)
}

// program is the "compiled user program": it looks up constants,
// dispatches methods, and bounces values through a fiber.
func program(e *runtime.Env) runtime.Value {
	gl := e.Global()

	greeterClass := gl.ObjectClass.ConstFind(e, "Greeter")
	greeter := e.SendName(greeterClass, "default")
	greeting := e.SendName(greeter, "greeting")

	// Feed the greeting through a fiber one byte count at a time, just
	// to show suspension delivering values both ways.
	blk := runtime.NewBlock(e, gl.MainObject(), func(e *runtime.Env, self runtime.Value, args runtime.Args, block *runtime.Block) runtime.Value {
		total := runtime.Int(0)
		for {
			chunk := runtime.YieldFiber(e, total)
			if chunk.IsNil() {
				return total
			}
			total = e.SendName(total, "+", chunk)
		}
	}, -1)
	f := runtime.NewFiber(e, blk)

	runtime.ResumeFiber(e, f)
	runtime.ResumeFiber(e, f, e.SendName(greeting, "size"))
	runtime.ResumeFiber(e, f, runtime.Int(2))
	total := runtime.ResumeFiber(e, f, gl.Nil)

	s := runtime.NewString(e, "")
	runtime.StringAppend(e, s, greeting)
	runtime.StringAppend(e, s, runtime.NewString(e, " ("))
	runtime.StringAppend(e, s, e.SendName(total, "inspect"))
	runtime.StringAppend(e, s, runtime.NewString(e, " bytes counted)"))
	return s
}

func printError(e *runtime.Env) {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, "uncaught exception")
	} else {
		fmt.Fprintln(os.Stderr, "uncaught exception")
	}
}
