package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/cloudvault/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN (empty selects the in-memory store)
//	-m string   metrics listen address
//	-l string   log format: json | console
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-q int64    default quota for new users, bytes
//	-t duration pending upload TTL
//	-w duration sweep interval
//	-h bool     hard quota (reservation ledger)
//
// Only the flags listed above are passed to the flag set, see flagx.FilterArgs.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-m", "-l", "-u", "-p", "-b", "-g", "-e", "-q", "-t", "-w", "-h"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "metrics listen address")
	fs.StringVar(&config.LogFormat, "l", config.LogFormat, "log format (json, console)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.Int64Var(&config.DefaultQuotaBytes, "q", config.DefaultQuotaBytes, "default user quota in bytes")
	fs.DurationVar(&config.UploadTTL, "t", config.UploadTTL, "pending upload ttl")
	fs.DurationVar(&config.SweepInterval, "w", config.SweepInterval, "expired upload sweep interval")
	fs.BoolVar(&config.HardQuota, "h", config.HardQuota, "reserve declared sizes of pending uploads")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
