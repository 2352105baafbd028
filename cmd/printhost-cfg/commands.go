package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/printhost/internal/client"
	"github.com/muurk/printhost/internal/discovery"
	"github.com/muurk/printhost/internal/settings"
)

const (
	// Environment fallbacks for the connection flags
	urlEnvVar    = "PRINTHOST_URL"
	apiKeyEnvVar = "PRINTHOST_API_KEY"

	defaultURL = "http://localhost:5000"
)

// Command flags
var (
	serverURL    string
	instanceName string
	apiKey       string
	timeout      time.Duration
	scanTimeout  time.Duration
	outputFormat string
	noVerify     bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "Server URL (default: $"+urlEnvVar+" or "+defaultURL+")")
	rootCmd.PersistentFlags().StringVar(&instanceName, "instance", "", "Find the server by its zeroconf name instead of --url")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key (default: $"+apiKeyEnvVar+")")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", client.DefaultTimeout, "HTTP request timeout")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(setCmd)
}

// scanCmd discovers servers on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for printhost servers on the network",
	Long: `Scan for printhost servers using zeroconf (mDNS/DNS-SD).

Servers started with --announce advertise themselves as ` + discovery.ServiceType + ` services.`,
	Example: `  # Scan for 5 seconds (default)
  printhost-cfg scan

  # Longer scan for slow networks
  printhost-cfg scan --scan-timeout 15s`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "scan-timeout", discovery.DefaultScanTimeout, "How long to listen for answers")
}

func runScan(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanning for printhost servers (timeout: %s)...\n\n", scanTimeout)

	scanner := discovery.NewScanner()
	scanner.Timeout = scanTimeout
	instances, err := scanner.Scan(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(instances) == 0 {
		fmt.Fprintln(out, "No servers found.")
		fmt.Fprintln(out, "\nTroubleshooting:")
		fmt.Fprintln(out, "  - Check that printhost-server runs with --announce")
		fmt.Fprintln(out, "  - Verify multicast (UDP 5353) is allowed on this network")
		fmt.Fprintln(out, "  - Try increasing --scan-timeout")
		fmt.Fprintln(out, "  - Use --url to specify the server manually")
		return nil
	}

	sort.Slice(instances, func(i, j int) bool { return instances[i].Name < instances[j].Name })

	fmt.Fprintf(out, "Found %d server(s):\n\n", len(instances))
	for i, inst := range instances {
		fmt.Fprintf(out, "%d. %s\n", i+1, inst.Name)
		fmt.Fprintf(out, "   URL:     %s\n", inst.BaseURL())
		if inst.Hostname != "" {
			fmt.Fprintf(out, "   Host:    %s\n", inst.Hostname)
		}
		if inst.Version != "" {
			fmt.Fprintf(out, "   Version: %s\n", inst.Version)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, "Use 'printhost-cfg show --url <url>' to view the settings")
	return nil
}

// showCmd prints the settings document or one value of it
var showCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Show server settings",
	Long: `Fetch the settings document from the server and print it.

With a dotted path only that part is printed. Without the admin key the API
key itself is redacted.`,
	Example: `  # Whole document as YAML
  printhost-cfg show

  # One section as JSON
  printhost-cfg show serial --format json

  # A single value
  printhost-cfg show serial.baudrate`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().StringVar(&outputFormat, "format", "yaml", "Output format (yaml, json)")
}

func runShow(cmd *cobra.Command, args []string) error {
	var path settings.Path
	if len(args) == 1 {
		p, err := settings.ParsePath(args[0])
		if err != nil {
			return err
		}
		path = p
	}

	ctx := commandContext(cmd)
	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	doc, err := c.GetSettings(ctx)
	if err != nil {
		return describe(err)
	}

	value, ok := client.Lookup(doc, path)
	if !ok {
		return fmt.Errorf("no setting at %s", path)
	}
	return printValue(cmd.OutOrStdout(), value, outputFormat)
}

// setCmd changes settings
var setCmd = &cobra.Command{
	Use:   "set <path=value>...",
	Short: "Change server settings",
	Long: `Send a partial settings document built from path=value pairs.

Values are read as JSON when possible (true, 42, 1.5, ["a","b"], null) and
as plain strings otherwise. After the update the answer is compared with
what was sent; values the server could not take are reported.`,
	Example: `  # Enable auto-connect and change the baud rate
  printhost-cfg set serial.autoconnect=true serial.baudrate=250000

  # Rename the printer
  printhost-cfg set "appearance.name=Workshop MK3"

  # Change an extension setting without verification
  printhost-cfg set plugins.discovery.publicPort=80 --no-verify`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSet,
}

func init() {
	setCmd.Flags().BoolVar(&noVerify, "no-verify", false, "Skip comparing the answer with the sent values")
}

func runSet(cmd *cobra.Command, args []string) error {
	patch, err := client.BuildPatch(args)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if noVerify {
		if _, err := c.UpdateSettings(ctx, patch); err != nil {
			return describe(err)
		}
		fmt.Fprintln(out, "Settings updated.")
		return nil
	}

	result, err := c.UpdateAndVerify(ctx, patch)
	if err != nil {
		return describe(err)
	}
	if !result.Success() {
		fmt.Fprintln(out, "Some values were not applied:")
		for _, m := range result.Mismatches {
			fmt.Fprintf(out, "  - %s\n", m)
		}
		return fmt.Errorf("%d value(s) not applied", len(result.Mismatches))
	}
	fmt.Fprintln(out, "Settings updated and verified.")
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// newClient resolves the server from --url, --instance or the environment
func newClient(ctx context.Context) (*client.Client, error) {
	key := apiKey
	if key == "" {
		key = os.Getenv(apiKeyEnvVar)
	}

	url := serverURL
	switch {
	case url != "":
	case instanceName != "":
		inst, err := discovery.NewScanner().Find(ctx, instanceName)
		if err != nil {
			return nil, err
		}
		url = inst.BaseURL()
	case os.Getenv(urlEnvVar) != "":
		url = os.Getenv(urlEnvVar)
	default:
		url = defaultURL
	}

	c := client.NewClient(url, key)
	c.SetTimeout(timeout)
	return c, nil
}

// describe attaches the troubleshooting hint to an API error
func describe(err error) error {
	return fmt.Errorf("%w\n\n%s", err, client.GetTroubleshootingHint(err))
}

func printValue(w io.Writer, value any, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	case "yaml":
		if _, isMap := value.(map[string]any); !isMap {
			if _, isList := value.([]any); !isList {
				_, err := fmt.Fprintln(w, settings.Stringify(value))
				return err
			}
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(value); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (use yaml or json)", format)
	}
}
