package main

import (
	"github.com/spf13/cobra"
)

// pipelineKeys maps the settings shared by analyze and ingest to their flags.
// They are bound in setup, once the command being run is known, since a
// viper key can only be bound to one flag.
var pipelineKeys = map[string]string{
	"ner.engine":               "engine",
	"annotate":                 "annotate",
	"trace":                    "trace",
	"aggregate.use_confidence": "use-confidence",
	"aggregate.threshold":      "threshold",
	"resolve.classifier":       "classifier",
	"resolve.validator":        "validator",
	"resolve.geonames":         "geonames",
	"resolve.lookup":           "lookup",
	"resolve.strict":           "strict",
	"resolve.workers":          "workers",
	"juditha.url":              "juditha-url",
	"geonames.path":            "geonames-path",
	"rigour.names_path":        "names",
	"normalize.phone_region":   "phone-region",
}

func addPipelineFlags(a *app, cmd *cobra.Command) {
	v := a.v
	f := cmd.Flags()
	f.String("engine", v.GetString("ner.engine"), "NER engine: all, kagome, heuristic, none")
	f.Bool("annotate", v.GetBool("annotate"), "Add annotated index text to documents")
	f.Bool("trace", v.GetBool("trace"), "Log pipeline decisions at debug level and a summary at the end")
	f.Bool("use-confidence", v.GetBool("aggregate.use_confidence"), "Drop aggregated mentions below --threshold")
	f.Float64("threshold", v.GetFloat64("aggregate.threshold"), "Confidence threshold for aggregated mentions")
	f.Bool("classifier", v.GetBool("resolve.classifier"), "Enable the juditha classifier stage")
	f.Bool("validator", v.GetBool("resolve.validator"), "Enable the juditha name validator stage")
	f.Bool("geonames", v.GetBool("resolve.geonames"), "Enable the geonames location stage")
	f.Bool("lookup", v.GetBool("resolve.lookup"), "Enable the juditha lookup stage")
	f.Bool("strict", v.GetBool("resolve.strict"), "Fail a record when a resolution service is unavailable; ingest keeps what it resolved and continues")
	f.Int("workers", v.GetInt("resolve.workers"), "Concurrent extractors and resolutions per record")
	f.String("juditha-url", v.GetString("juditha.url"), "Base URL of the juditha service")
	f.String("geonames-path", v.GetString("geonames.path"), "Path of the geonames dataset")
	f.String("names", v.GetString("rigour.names_path"), "YAML name dictionary extending the built-in one")
	f.String("phone-region", v.GetString("normalize.phone_region"), "Default region for phone numbers without a country code")
	a.bindOnRun(cmd, pipelineKeys)
}

// bindOnRun records flag bindings that setup applies when cmd is the command
// being run.
func (a *app) bindOnRun(cmd *cobra.Command, keys map[string]string) {
	if a.bindings == nil {
		a.bindings = map[*cobra.Command][]map[string]string{}
	}
	a.bindings[cmd] = append(a.bindings[cmd], keys)
}
