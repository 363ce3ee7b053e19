package organizer

import "strings"

// Destination directories.
const (
	DirLogsErrOut   = "logs_err_out"
	DirLogs         = "logs"
	DirFitsImages   = "fits_images"
	DirNpyDicts     = "npy_dicts"
	DirTcleanTiming = "tclean_timing"
)

type rule struct {
	suffix string
	dir    string
}

// rules are checked in order; the first matching suffix wins.
var rules = []rule{
	{suffix: "_timing.txt", dir: DirTcleanTiming},
	{suffix: ".err", dir: DirLogsErrOut},
	{suffix: ".out", dir: DirLogsErrOut},
	{suffix: ".log", dir: DirLogs},
	{suffix: ".fits", dir: DirFitsImages},
	{suffix: ".npy", dir: DirNpyDicts},
}

// Directories returns every destination directory in creation order.
func Directories() []string {
	return []string{DirLogsErrOut, DirLogs, DirFitsImages, DirNpyDicts, DirTcleanTiming}
}

// Categorize returns the destination directory for a file name. Hidden files
// never match, like an unquoted shell glob.
func Categorize(name string) (string, bool) {
	if name == "" || strings.HasPrefix(name, ".") {
		return "", false
	}
	for _, r := range rules {
		if strings.HasSuffix(name, r.suffix) {
			return r.dir, true
		}
	}
	return "", false
}
