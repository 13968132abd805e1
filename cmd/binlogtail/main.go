// Command binlogtail tails a MySQL replica session and prints each
// Action as a JSON line.
//
// binlogtail -dsn user:pass@tcp(127.0.0.1:3306)/ -file mysql-bin.000001 -pos 4
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/quayside-io/binlogstream"
	"github.com/quayside-io/binlogstream/internal/ddlparser"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "binlogtail:", err)
		os.Exit(1)
	}
}

func run() error {
	dsn := flag.String("dsn", "", "go-sql-driver DSN of the source server, e.g. user:pass@tcp(host:3306)/")
	file := flag.String("file", "", "binlog file to start from")
	pos := flag.Uint("pos", 4, "byte offset within -file to start from")
	logStatements := flag.Bool("log-statements", false, "log every QUERY_EVENT's schema and text")
	verbose := flag.Bool("v", false, "debug-level logging")
	flag.Parse()

	if *dsn == "" || *file == "" {
		return fmt.Errorf("-dsn and -file are required")
	}
	cfg, err := mysql.ParseDSN(*dsn)
	if err != nil {
		return fmt.Errorf("parse dsn: %w", err)
	}

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		cancel()
	}()

	sess, err := binlogstream.Connect(ctx, binlogstream.SessionOptions{
		Config:        cfg,
		LogStatements: *logStatements,
		Logger:        logrus.NewEntry(log),
		DDLParser:     ddlparser.New(),
	}, binlogstream.Position{File: *file, Offset: uint32(*pos)})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sess.Close()

	enc := json.NewEncoder(os.Stdout)
	for {
		act, _, err := sess.NextAction(nil)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("next action: %w", err)
		}
		if err := enc.Encode(act); err != nil {
			return fmt.Errorf("encode action: %w", err)
		}
	}
}
