/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Client-facing failure classes. None of these are fatal to the process;
// they are surfaced to the offending connection as an ERROR_UNK message
// and the connection stays open.
var (
	errMalformedMessage   = errors.New("malformed message")
	errUnsupportedMessage = errors.New("unsupported message type")
	errInvalidMove        = errors.New("invalid move")
	errUnknownPlayer      = errors.New("unknown player")
	errUnknownRoom        = errors.New("unknown room")
	errWordProvider       = errors.New("word service unavailable")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
