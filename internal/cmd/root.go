package cmd

import (
	"github.com/alecthomas/kong"
)

type CLI struct {
	Config  string `help:"Path to the YAML config file (default: ./config.yaml when present)." env:"JOBMARKET_CONFIG" type:"path"`
	Verbose bool   `help:"Enable debug logging."`
	Pretty  bool   `help:"Human-readable console logs instead of JSON."`
	DryRun  bool   `name:"dry-run" help:"Use an in-memory store instead of Postgres."`

	VersionFlag kong.VersionFlag `name:"version" help:"Print version."`

	Ingest  IngestCmd  `cmd:"" help:"Extract, normalize and upsert job postings."`
	Serve   ServeCmd   `cmd:"" help:"Serve the analytics API."`
	Migrate MigrateCmd `cmd:"" help:"Create the job_postings schema."`
	Version VersionCmd `cmd:"" help:"Print version."`
}

type IngestCmd struct {
	HTML    HTMLCmd    `cmd:"" name:"html" help:"Ingest job cards from an HTML page or local file."`
	JSearch JSearchCmd `cmd:"" name:"jsearch" help:"Ingest from the JSearch API."`
	Sources SourcesCmd `cmd:"" help:"Ingest the sources declared in the config file."`
}

func NewCLI() *CLI {
	return &CLI{}
}

// NewParser builds the kong parser used by main and tests.
func NewParser(cli *CLI, version string) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("jobmarket"),
		kong.Description("Job market ingestion and analytics."),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{"version": version},
	)
}
