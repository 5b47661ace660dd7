package hmc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"morphocv/internal/errors"
)

// TargetKind is the sampler's model type for the class target
type TargetKind string

const (
	TargetBinary TargetKind = "binary"
	TargetClass  TargetKind = "class"
)

// Log description keys
const (
	KeyResultDir = "RESDIR"
	KeyPreds     = "PREDS"
	KeyARD       = "ARD"
	KeyLogDir    = "LOGDIR"
	KeyLogFiles  = "LOGFILES"
	KeyBurnIn    = "BURNIN"
	KeyTargets   = "TARGS"
	KeyMeanCols  = "MEANCOLS"
)

// Default file suffixes of the per-fold outputs
const (
	DefaultPredSuffix = "_preds.txt"
	DefaultARDSuffix  = "_inputard.txt"
)

// LogInfo is the log description written when an iteration is prepared.
// It tells a later collection step where the fold outputs are.
type LogInfo struct {
	ResultDir  string
	PredSuffix string
	ARDSuffix  string
	LogDir     string
	LogFiles   []string
	BurnIn     int
	Target     TargetKind
	MeanCols   int
}

// TargetFor returns the target kind and the number of mean columns the
// sampler reports for classCount classes
func TargetFor(classCount int) (TargetKind, int) {
	if classCount == 2 {
		return TargetBinary, 1
	}
	return TargetClass, classCount
}

// WriteLogInfo writes info as KEY:\tvalue lines
func WriteLogInfo(w io.Writer, info LogInfo) error {
	lines := [][2]string{
		{KeyResultDir, info.ResultDir},
		{KeyPreds, info.PredSuffix},
		{KeyARD, info.ARDSuffix},
		{KeyLogDir, info.LogDir},
		{KeyLogFiles, strings.Join(info.LogFiles, ",")},
		{KeyBurnIn, strconv.Itoa(info.BurnIn)},
		{KeyTargets, string(info.Target)},
		{KeyMeanCols, strconv.Itoa(info.MeanCols)},
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%s:\t%s\n", l[0], l[1]); err != nil {
			return err
		}
	}
	return nil
}

// ReadLogInfo parses a log description file
func ReadLogInfo(path string) (LogInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return LogInfo{}, errors.ConfigInvalidf("hmc log description: %v", err)
	}
	defer f.Close()
	info, err := ParseLogInfo(f)
	if err != nil {
		return LogInfo{}, errors.Wrapf(err, "hmc log description %s", path)
	}
	return info, nil
}

// ParseLogInfo reads key:value lines. Unknown keys are ignored; every known
// key is required.
func ParseLogInfo(r io.Reader) (LogInfo, error) {
	var info LogInfo
	seen := map[string]bool{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		var err error
		switch key {
		case KeyResultDir:
			info.ResultDir = value
		case KeyPreds:
			info.PredSuffix = value
		case KeyARD:
			info.ARDSuffix = value
		case KeyLogDir:
			info.LogDir = value
		case KeyLogFiles:
			info.LogFiles = nil
			for _, name := range strings.Split(value, ",") {
				if name = strings.TrimSpace(name); name != "" {
					info.LogFiles = append(info.LogFiles, name)
				}
			}
		case KeyBurnIn:
			info.BurnIn, err = strconv.Atoi(value)
		case KeyTargets:
			info.Target = TargetKind(value)
		case KeyMeanCols:
			info.MeanCols, err = strconv.Atoi(value)
		default:
			continue
		}
		if err != nil {
			return LogInfo{}, errors.DataIntegrityf("%s: %v", key, err)
		}
		seen[key] = true
	}
	if err := scanner.Err(); err != nil {
		return LogInfo{}, errors.DataIntegrityf("read log description: %v", err)
	}
	for _, key := range []string{KeyResultDir, KeyPreds, KeyARD, KeyBurnIn, KeyTargets, KeyMeanCols} {
		if !seen[key] {
			return LogInfo{}, errors.DataIntegrityf("log description lacks %s", key)
		}
	}
	switch info.Target {
	case TargetBinary, TargetClass:
	case "real":
		return LogInfo{}, errors.ConfigInvalid("regression targets are not supported")
	default:
		return LogInfo{}, errors.DataIntegrityf("unknown target type %q", info.Target)
	}
	if info.BurnIn < 0 || info.MeanCols < 1 {
		return LogInfo{}, errors.DataIntegrityf("invalid BURNIN %d or MEANCOLS %d", info.BurnIn, info.MeanCols)
	}
	return info, nil
}
