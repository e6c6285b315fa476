package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jllopis/nerve/pkg/agent/namespaces"
)

type actionInfo struct {
	Namespace   string `json:"namespace"`
	Action      string `json:"action"`
	Default     bool   `json:"default"`
	Description string `json:"description"`
}

func runNamespaces(flags globalFlags, args []string, out io.Writer) error {
	if len(args) > 0 {
		return NewInvalidArgumentError("namespaces", fmt.Sprintf("unexpected args: %v", args))
	}

	registry := namespaces.Registry(slog.Default())
	var infos []actionInfo
	for _, name := range registry.Names() {
		ns, err := registry.Build(name)
		if err != nil {
			return err
		}
		for _, a := range ns.Actions {
			infos = append(infos, actionInfo{
				Namespace:   ns.Name,
				Action:      a.Name(),
				Default:     ns.Default,
				Description: strings.TrimSpace(a.Description()),
			})
		}
	}
	if flags.JSON {
		for _, info := range infos {
			writeJSONLine(out, info)
		}
		return nil
	}
	w := newTabWriter(out)
	writeRow(w, "NAMESPACE", "ACTION", "DEFAULT", "DESCRIPTION")
	for _, info := range infos {
		writeRow(w, info.Namespace, info.Action, fmt.Sprint(info.Default), info.Description)
	}
	return w.Flush()
}
