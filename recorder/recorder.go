// Package recorder records stream urls to disk with ffmpeg, one child
// process per named task.
package recorder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

var (
	ErrMissingParams    = errors.New("name and url are required")
	ErrAlreadyRecording = errors.New("task is already recording")
	ErrTaskNotFound     = errors.New("task not found")
)

const (
	DefaultDurationSec = 3600
	streamUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

type StartRequest struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	DurationSec int    `json:"durationSec"`
	OutDir      string `json:"outDir"`
}

type TaskInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PID         int       `json:"pid"`
	URL         string    `json:"url"`
	OutDir      string    `json:"outDir"`
	OutFile     string    `json:"outFile"`
	StartAt     time.Time `json:"startAt"`
	DurationSec int       `json:"durationSec"`
	ElapsedSec  int       `json:"elapsedSec"`
	LogFile     string    `json:"logFile"`
	Alive       bool      `json:"alive"`
}

type task struct {
	info TaskInfo
	cmd  *exec.Cmd
	done chan struct{}
}

// CommandFunc builds the process for a recording.
type CommandFunc func(name string, args ...string) *exec.Cmd

type Manager struct {
	FFmpegPath    string
	BaseDir       string
	DefaultOutDir string
	LogDir        string
	Command       CommandFunc
	Log           logrus.FieldLogger

	mu    sync.Mutex
	tasks map[string]*task
}

func NewManager(ffmpegPath, baseDir, defaultOutDir, logDir string, log logrus.FieldLogger) *Manager {
	return &Manager{
		FFmpegPath:    ffmpegPath,
		BaseDir:       baseDir,
		DefaultOutDir: defaultOutDir,
		LogDir:        logDir,
		Command:       exec.Command,
		Log:           log,
		tasks:         make(map[string]*task),
	}
}

func timestamp(t time.Time) string {
	return strings.NewReplacer(":", "-", ".", "-").Replace(t.UTC().Format("2006-01-02T15:04:05.000Z"))
}

func (m *Manager) resolve(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(m.BaseDir, dir)
}

// FFmpegArgs returns the arguments used to record url into outFile.
func FFmpegArgs(url string, durationSec int, outFile string) []string {
	var args []string
	if strings.Contains(url, ".m3u8") || strings.Contains(url, "douyin") {
		args = append(args,
			"-user_agent", streamUserAgent,
			"-referer", url,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}
	return append(args,
		"-i", url,
		"-t", strconv.Itoa(durationSec),
		"-c", "copy",
		"-movflags", "+faststart",
		"-y",
		outFile,
	)
}

func (m *Manager) Start(req StartRequest) (TaskInfo, error) {
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.URL) == "" {
		return TaskInfo{}, ErrMissingParams
	}
	if req.DurationSec <= 0 {
		req.DurationSec = DefaultDurationSec
	}
	if req.OutDir == "" {
		req.OutDir = m.DefaultOutDir
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tasks[req.Name]; ok && t.info.Alive {
		return TaskInfo{}, fmt.Errorf("%w: %s", ErrAlreadyRecording, req.Name)
	}

	outDir := m.resolve(req.OutDir)
	logDir := m.resolve(m.LogDir)
	for _, dir := range []string{outDir, logDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return TaskInfo{}, fmt.Errorf("could not create %s: %w", dir, err)
		}
	}

	startAt := time.Now().UTC()
	stamp := timestamp(startAt)
	info := TaskInfo{
		ID:          ulid.Make().String(),
		Name:        req.Name,
		URL:         req.URL,
		OutDir:      outDir,
		OutFile:     filepath.Join(outDir, fmt.Sprintf("%s-%s.mp4", req.Name, stamp)),
		StartAt:     startAt,
		DurationSec: req.DurationSec,
		LogFile:     filepath.Join(logDir, fmt.Sprintf("record-%s-%s.log", req.Name, stamp)),
	}

	logFile, err := os.OpenFile(info.LogFile, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return TaskInfo{}, fmt.Errorf("could not open log file: %w", err)
	}

	cmd := m.Command(m.FFmpegPath, FFmpegArgs(req.URL, req.DurationSec, info.OutFile)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		logFile.Close()
		return TaskInfo{}, fmt.Errorf("could not open stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		logFile.Close()
		return TaskInfo{}, fmt.Errorf("could not open stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		fmt.Fprintf(logFile, "[ERROR] could not start: %v\n", err)
		logFile.Close()
		return TaskInfo{}, fmt.Errorf("could not start ffmpeg: %w", err)
	}

	info.PID = cmd.Process.Pid
	info.Alive = true
	fmt.Fprintf(logFile, "[%s] recording %s\nurl: %s\nout: %s\nduration: %ds\npid: %d\n---\n",
		startAt.Format(time.RFC3339), info.Name, info.URL, info.OutFile, info.DurationSec, info.PID)

	t := &task{info: info, cmd: cmd, done: make(chan struct{})}
	m.tasks[req.Name] = t

	log := m.Log.WithFields(logrus.Fields{"task": info.Name, "pid": info.PID})
	log.Infof("recording %s", info.URL)

	var (
		fileMu sync.Mutex
		pipes  sync.WaitGroup
	)
	pipe := func(r io.Reader, tag string) {
		defer pipes.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := scanner.Text()
			fileMu.Lock()
			fmt.Fprintf(logFile, "[%s] %s\n", tag, line)
			fileMu.Unlock()
			log.Debug(line)
		}
	}
	pipes.Add(2)
	go pipe(stdout, "STDOUT")
	go pipe(stderr, "STDERR")

	go func() {
		pipes.Wait()
		err := cmd.Wait()
		code := cmd.ProcessState.ExitCode()

		fileMu.Lock()
		fmt.Fprintf(logFile, "[%s] recording finished, exit code %d\n", time.Now().UTC().Format(time.RFC3339), code)
		logFile.Close()
		fileMu.Unlock()

		m.mu.Lock()
		t.info.Alive = false
		m.mu.Unlock()
		close(t.done)

		if err != nil {
			log.WithError(err).Warnf("recording exited with code %d", code)
			return
		}
		log.Info("recording finished")
	}()

	return info, nil
}

// Stop signals the named recording. It reports false when the task had
// already finished.
func (m *Manager) Stop(name string) (bool, error) {
	m.mu.Lock()
	t, ok := m.tasks[name]
	if !ok {
		m.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	alive := t.info.Alive
	m.mu.Unlock()

	if !alive {
		return false, nil
	}
	if err := terminate(t.cmd.Process); err != nil {
		return false, fmt.Errorf("could not stop %s: %w", name, err)
	}
	m.Log.WithField("task", name).Info("recording stopped")
	return true, nil
}

func terminate(p *os.Process) error {
	if runtime.GOOS == "windows" {
		return p.Kill()
	}
	err := p.Signal(syscall.SIGTERM)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Status lists the live recordings.
func (m *Manager) Status() []TaskInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var out []TaskInfo
	for _, t := range m.tasks {
		if !t.info.Alive {
			continue
		}
		info := t.info
		info.ElapsedSec = int(now.Sub(info.StartAt).Seconds())
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out
}

// StopAll signals every live recording and waits up to grace for them to exit.
func (m *Manager) StopAll(grace time.Duration) {
	m.mu.Lock()
	var live []*task
	for _, t := range m.tasks {
		if t.info.Alive {
			live = append(live, t)
		}
	}
	m.mu.Unlock()

	for _, t := range live {
		m.Log.WithField("task", t.info.Name).Info("stopping recording")
		if err := terminate(t.cmd.Process); err != nil {
			m.Log.WithField("task", t.info.Name).WithError(err).Warn("could not stop recording")
		}
	}

	deadline := time.After(grace)
	for _, t := range live {
		select {
		case <-t.done:
		case <-deadline:
			return
		}
	}
}

// Wait blocks until the named task exits. It is used by callers that
// need the log file to be complete.
func (m *Manager) Wait(name string) error {
	m.mu.Lock()
	t, ok := m.tasks[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	<-t.done
	return nil
}
