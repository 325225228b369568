package main

import (
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"tolk/audio"
	"tolk/config"
	"tolk/doctor"
	"tolk/log"
	"tolk/shutdown"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configFlag := flag.String("config", "", "config file (default: ./tolk.yaml, then the user config dir)")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	formatFlag := flag.String("format", "", "Audio upload format: flac or wav")
	engineFlag := flag.String("engine", "", "Speech engine: native or cloud")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven, audio from a WAV file)")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("tolk %s\n", version)
		return 0
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *formatFlag != "" {
		cfg.Audio.Format = *formatFlag
	}
	if *engineFlag != "" {
		cfg.Speech.Engine = *engineFlag
	}
	if *deviceFlag != "" {
		cfg.Audio.Device = *deviceFlag
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *doctorFlag {
		return doctor.Run(cfg)
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	if *testFlag {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: tolk -test <wav-file>")
			return 1
		}
		return runTestMode(cfg, args[0])
	}

	return runInteractive(cfg, *setupFlag)
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), log.CrashFile)
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

func runInteractive(cfg *config.Config, setup bool) int {
	audioCtx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		return 1
	}
	defer audioCtx.Close()

	device, err := resolveDevice(audioCtx, cfg.Audio.Device, setup)
	if err != nil {
		log.Warnf("device selection failed: %v", err)
		fmt.Printf("Warning: device selection failed: %v\n", err)
		fmt.Println("Falling back to default device")
	}

	player, err := audio.NewPlayer()
	if err != nil {
		log.Warnf("audio output unavailable: %v", err)
	}

	a, err := newApp(cfg, appOptions{audioCtx: audioCtx, device: device, player: player})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer a.close()
	a.logSessionStart()

	prog := newTUIProgram(a)

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		prog.Quit()
	}()

	if _, err := prog.Run(); err != nil {
		log.Errorf("TUI error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// resolveDevice picks the capture device: interactively with -setup
// (starting on the -device one), by name with -device, otherwise the
// system default (nil).
func resolveDevice(ctx audio.Context, name string, setup bool) (*audio.DeviceInfo, error) {
	switch {
	case setup:
		return audio.SelectDevice(ctx, name)
	case name != "":
		return audio.DeviceByName(ctx, name)
	}
	return nil, nil
}

func deviceLineText(a *app) string {
	name := a.rec.DeviceName()
	suffix := ""
	if audio.IsBluetooth(name) {
		suffix = " (BT!)"
	}
	return "mic: " + name + suffix
}

func modeLineText(a *app) string {
	return fmt.Sprintf("[%s | %s (%s) | %s | %s]",
		a.rec.Format(), a.tr.Name(), a.cfg.Transcriber.Language, a.tl.Name(), a.speaker.Engine().Name())
}
