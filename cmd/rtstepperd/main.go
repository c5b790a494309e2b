// Command rtstepperd drives an rtstepper USB dongle: it loads its two
// configuration files, opens the dongle, and either serves the HTTP motion
// interface or runs a single MDI line/G-code file from the command line.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/theckman/yacspin"
	yml "gopkg.in/yaml.v2"

	"github.com/rtstepper/rtstepperd/config"
	"github.com/rtstepper/rtstepperd/dispatch"
	"github.com/rtstepper/rtstepperd/httpsrv"
	"github.com/rtstepper/rtstepperd/session"
	"github.com/rtstepper/rtstepperd/usbdongle"
)

// Version is the version number, injected via -ldflags at build time.
var Version = "dev"

const daemonConfigFile = "rtstepperd.yml"

var k = koanf.New(".")

func setupconfig() {
	k.Load(structs.Provider(config.DefaultDaemon(), "koanf"), nil)
	if err := k.Load(file.Provider(daemonConfigFile), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") {
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	fmt.Println(`rtstepperd drives an rtstepper USB stepper-motor dongle and exposes
an HTTP interface for motion commands.

Usage:
	rtstepperd <command>

Commands:
	run      serve the HTTP motion interface
	mkconf   write the default daemon config to rtstepperd.yml
	conf     print the active daemon config
	mdi      run a single MDI line, e.g. rtstepperd mdi "G1 X1.0 F1.0"
	auto     run a G-code file line by line
	version`)
}

func mkconf() {
	d := config.DefaultDaemon()
	if err := config.WriteDaemon(daemonConfigFile, d); err != nil {
		log.Fatal(err)
	}
	sample := config.AxisTable{
		"x": {StepPin: 2, DirectionPin: 3, StepActiveHigh: true, DirActiveHigh: true, StepsPerUnit: 1000, MaxVelocity: 1, MaxAcceleration: 10, MaxPosLimit: 10, MinPosLimit: -10},
	}
	if err := config.WriteAxes(d.ToolFile, sample); err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	var d config.Daemon
	if err := k.Unmarshal("", &d); err != nil {
		log.Fatal(err)
	}
	if err := yml.NewEncoder(os.Stdout).Encode(d); err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("rtstepperd version %v\n", Version)
}

func buildSession() (*session.Session, error) {
	var d config.Daemon
	if err := k.Unmarshal("", &d); err != nil {
		return nil, err
	}
	axes, err := config.LoadAxes(d.ToolFile)
	if err != nil {
		return nil, err
	}
	sess := session.New(d, axes)

	dongle, err := usbdongle.Open(d.VendorID, d.ProductID)
	if err != nil {
		log.Printf("warning: could not open dongle (%v); continuing without a USB engine attached", err)
		return sess, nil
	}
	engine := newEngineFor(dongle, sess, d)
	sess.Engine = engine
	go engine.Run(context.Background())
	return sess, nil
}

func run() {
	sess, err := buildSession()
	if err != nil {
		log.Fatal(err)
	}
	disp := dispatch.New(sess)
	srv := httpsrv.New(disp)

	root := chi.NewRouter()
	root.Use(middleware.Logger)
	srv.Bind(root)

	var d config.Daemon
	k.Unmarshal("", &d)
	log.Println("now listening for requests at", d.Addr)
	log.Fatal(http.ListenAndServe(d.Addr, root))
}

func mdiCmd(line string) {
	sess, err := buildSession()
	if err != nil {
		log.Fatal(err)
	}
	disp := dispatch.New(sess)
	code, err := disp.MDI(line)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(code)
}

func autoCmd(path string) {
	sess, err := buildSession()
	if err != nil {
		log.Fatal(err)
	}
	lines, err := readLines(path)
	if err != nil {
		log.Fatal(err)
	}
	cmds, err := parseLines(lines)
	if err != nil {
		log.Fatal(err)
	}

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[9],
		Suffix:          fmt.Sprintf(" running %d commands", len(cmds)),
		SuffixAutoColon: true,
	})
	if err == nil {
		spinner.Start()
		defer spinner.Stop()
	}

	disp := dispatch.New(sess)
	code, ran, err := disp.Auto(cmds)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s (%d/%d commands run)\n", code, ran, len(cmds))
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd := strings.ToLower(args[1])
	switch cmd {
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "run":
		run()
	case "version":
		pversion()
	case "mdi":
		if len(args) < 3 {
			log.Fatal("usage: rtstepperd mdi \"<gcode line>\"")
		}
		mdiCmd(args[2])
	case "auto":
		if len(args) < 3 {
			log.Fatal("usage: rtstepperd auto <path-to-gcode-file>")
		}
		autoCmd(args[2])
	default:
		log.Fatal("unknown command ", cmd)
	}
}
