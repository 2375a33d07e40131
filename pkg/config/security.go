package config

import (
	"strings"

	"github.com/cuemby/minicluster/pkg/types"
)

// SecurityEnv returns the environment variables a node needs to pick up a
// secured identity. Returns an empty map when security is not configured,
// so callers can merge unconditionally.
func SecurityEnv(sec *types.SecurityConfig) map[string]string {
	env := map[string]string{}
	if sec != nil {
		env["KRB5CCNAME"] = sec.CredentialCachePath
	}
	return env
}

// RuntimeOptions builds the JAVA_TOOL_OPTIONS value for the metadata
// service. Log output is damped in all modes; the credential-cache config
// path is injected only when security is enabled, since the JVM does its
// own Kerberos config discovery otherwise.
func RuntimeOptions(sec *types.SecurityConfig) string {
	opts := []string{"-Dmetaserve.log.level=WARN"}
	if sec != nil {
		opts = append(opts, "-Djava.security.krb5.conf="+sec.CredentialCachePath)
	}
	return strings.Join(opts, " ")
}
