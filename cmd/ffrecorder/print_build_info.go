package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime/debug"

	"github.com/xaionaro-go/ffrecorder/pkg/buildvars"
)

type buildVars struct {
	Version   string `json:",omitempty"`
	GitCommit string `json:",omitempty"`
	BuildDate string `json:",omitempty"`
}

type buildInfo struct {
	BuildVars *buildVars       `json:",omitempty"`
	BuildInfo *debug.BuildInfo `json:",omitempty"`
}

func getBuildInfo() buildInfo {
	result := buildInfo{
		BuildVars: &buildVars{
			Version:   buildvars.Version,
			GitCommit: buildvars.GitCommit,
		},
	}
	if buildvars.BuildDate != nil {
		result.BuildVars.BuildDate = buildvars.BuildDate.UTC().Format("2006-01-02T15:04:05Z")
	}
	if *result.BuildVars == (buildVars{}) {
		result.BuildVars = nil
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		result.BuildInfo = bi
	}
	return result
}

func printBuildInfo(out io.Writer) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", " ")
	if err := enc.Encode(getBuildInfo()); err != nil {
		return fmt.Errorf("unable to encode the build info: %w", err)
	}
	return nil
}
