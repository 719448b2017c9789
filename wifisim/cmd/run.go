package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/wifisim/datarecording"
	"github.com/sarchlab/wifisim/monitoring"
	"github.com/sarchlab/wifisim/scenario"
)

type runFlags struct {
	config  string
	csv     string
	sinkCSV string
	xml     string
	db      string
	monitor bool
	browser bool
	port    int
	trace   bool
}

var runOpts runFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every sweep point of a scenario file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runScenario(cmd.OutOrStdout(), runOpts)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.config, "config", "", "Scenario YAML file")
	f.StringVar(&runOpts.csv, "csv", "",
		"Append one row per flow to this CSV file")
	f.StringVar(&runOpts.sinkCSV, "sink-csv", "",
		"Append one row per packet sink to this CSV file")
	f.StringVar(&runOpts.xml, "xml", "", "Write the flow statistics as XML")
	f.StringVar(&runOpts.db, "db", "",
		"Record the results into <db>.sqlite3")
	f.BoolVar(&runOpts.monitor, "monitor", false,
		"Serve the monitoring API while simulating")
	f.BoolVar(&runOpts.browser, "browser", false,
		"Open the monitoring API in a browser")
	f.IntVar(&runOpts.port, "port", 0,
		"Port of the monitoring API, random if not above 1000")
	f.BoolVar(&runOpts.trace, "trace", false,
		"Log every event at trace level")
}

func runScenario(out io.Writer, f runFlags) error {
	if f.config == "" {
		return errors.New("--config is required")
	}

	cfg, err := scenario.Load(f.config)
	if err != nil {
		return err
	}

	opts := scenario.Options{
		Logger:      logrus.StandardLogger(),
		TraceEvents: f.trace,
	}

	if f.monitor {
		mon, metrics, err := startMonitor(f)
		if err != nil {
			return err
		}
		defer func() {
			if err := mon.StopServer(); err != nil {
				logrus.WithError(err).Warn("stopping monitor")
			}
		}()

		opts.Monitor = mon
		opts.Metrics = metrics
	}

	results, err := scenario.RunAll(cfg, opts)
	if err != nil {
		return err
	}

	if err := scenario.WriteText(out, results); err != nil {
		return err
	}

	if f.csv != "" {
		if err := appendCSV(f.csv, results, scenario.WriteCSV); err != nil {
			return err
		}
	}

	if f.sinkCSV != "" {
		err := appendCSV(f.sinkCSV, results, scenario.WriteSinkCSV)
		if err != nil {
			return err
		}
	}

	if f.xml != "" {
		if err := writeXML(f.xml, results); err != nil {
			return err
		}
	}

	if f.db != "" {
		if err := record(f.db, f.config, results); err != nil {
			return err
		}
	}

	return nil
}

func startMonitor(f runFlags) (*monitoring.Monitor, *monitoring.Metrics, error) {
	metrics, err := monitoring.NewMetrics(nil)
	if err != nil {
		return nil, nil, err
	}

	mon := monitoring.NewMonitor().
		WithPortNumber(f.port).
		WithBrowser(f.browser).
		WithMetrics(metrics)

	if _, err := mon.StartServer(); err != nil {
		return nil, nil, err
	}

	return mon, metrics, nil
}

// appendCSV writes the header only when it creates the file, so repeated
// runs accumulate in one table.
func appendCSV(
	path string,
	results []*scenario.Result,
	write func(io.Writer, []*scenario.Result, bool) error,
) error {
	_, statErr := os.Stat(path)
	header := os.IsNotExist(statErr)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	if err := write(file, results, header); err != nil {
		_ = file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return file.Close()
}

func writeXML(path string, results []*scenario.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := scenario.WriteXML(file, results); err != nil {
		_ = file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return file.Close()
}

func record(path, config string, results []*scenario.Result) error {
	recorder, err := datarecording.New(path)
	if err != nil {
		return err
	}

	exec, err := datarecording.NewExecRecorder(recorder)
	if err != nil {
		return err
	}

	exec.Start()
	exec.Set("Config", config)

	if err := scenario.Record(recorder, results); err != nil {
		return err
	}

	if err := exec.End(); err != nil {
		return err
	}

	return recorder.Close()
}
