package config

import (
	"strings"

	"al.essio.dev/pkg/shellescape"
)

// javaQuietFlags silence Spring Boot's banner and startup logging, which
// would otherwise be written to stdout ahead of the protocol stream.
var javaQuietFlags = []string{
	"-Dlogging.level.root=OFF",
	"-Dspring.main.banner-mode=off",
	"-Dspring.main.log-startup-info=false",
}

// ExpandLaunch turns a bare .jar path into a java invocation. Other commands
// are returned unchanged.
func ExpandLaunch(command string, args []string) (string, []string) {
	if !strings.EqualFold(fileExt(command), ".jar") {
		return command, args
	}
	expanded := make([]string, 0, len(javaQuietFlags)+2+len(args))
	expanded = append(expanded, javaQuietFlags...)
	expanded = append(expanded, "-jar", command)
	expanded = append(expanded, args...)
	return "java", expanded
}

// LaunchLine renders a command line that can be pasted into a shell.
func LaunchLine(command string, args []string) string {
	return shellescape.QuoteCommand(append([]string{command}, args...))
}

func fileExt(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 || strings.ContainsAny(path[i:], `/\`) {
		return ""
	}
	return path[i:]
}
