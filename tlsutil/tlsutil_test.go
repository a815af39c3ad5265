package tlsutil

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trailmark-labs/ppm/security"
)

// writeSelfSignedCert generates a throwaway self-signed cert/key pair on disk
// for exercising the certificate-loading paths without any network access.
func writeSelfSignedCert(t *testing.T, dir, name string) (certPath, keyPath string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: name},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	require.NoError(t, err)

	certPath = filepath.Join(dir, name+".pem")
	keyPath = filepath.Join(dir, name+".key")

	certOut, err := os.Create(certPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
	require.NoError(t, certOut.Close())

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)
	keyOut, err := os.Create(keyPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}))
	require.NoError(t, keyOut.Close())

	return certPath, keyPath
}

func TestParseTLSVersion(t *testing.T) {
	require.Equal(t, uint16(tls.VersionTLS13), parseTLSVersion("1.3"))
	require.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion("1.2"))
	require.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion(""))
	require.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion("bogus"))
}

func TestLoadServerTLSConfigDisabledReturnsNil(t *testing.T) {
	cfg, err := LoadServerTLSConfig(security.ServerTLSConfig{Enabled: false})
	require.NoError(t, err)
	require.Nil(t, cfg)
}

func TestLoadServerTLSConfigLoadsCertificate(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedCert(t, dir, "server")

	cfg, err := LoadServerTLSConfig(security.ServerTLSConfig{
		Enabled: true, CertFile: certPath, KeyFile: keyPath, MinVersion: "1.3",
	})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Len(t, cfg.Certificates, 1)
	require.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
}

func TestLoadServerTLSConfigMissingFileErrors(t *testing.T) {
	_, err := LoadServerTLSConfig(security.ServerTLSConfig{
		Enabled: true, CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem",
	})
	require.Error(t, err)
}

func TestLoadClientTLSConfigUsesSystemPoolAndExtraCAs(t *testing.T) {
	dir := t.TempDir()
	certPath, _ := writeSelfSignedCert(t, dir, "ca")

	cfg, err := LoadClientTLSConfig(security.ClientTLSConfig{CAFiles: []string{certPath}, MinVersion: "1.2"})
	require.NoError(t, err)
	require.NotNil(t, cfg.RootCAs)
	require.False(t, cfg.InsecureSkipVerify)
}

func TestLoadClientTLSConfigInsecureSkipVerify(t *testing.T) {
	cfg, err := LoadClientTLSConfig(security.ClientTLSConfig{InsecureSkipVerify: true})
	require.NoError(t, err)
	require.True(t, cfg.InsecureSkipVerify)
}

func TestLoadServerTLSConfigWithMTLSRequiresClientCert(t *testing.T) {
	dir := t.TempDir()
	serverCert, serverKey := writeSelfSignedCert(t, dir, "server")
	clientCA, _ := writeSelfSignedCert(t, dir, "clientca")

	cfg, err := LoadServerTLSConfigWithMTLS(
		security.ServerTLSConfig{Enabled: true, CertFile: serverCert, KeyFile: serverKey},
		security.ServerMTLSConfig{Enabled: true, ClientCAFiles: []string{clientCA}, RequireClientCert: true},
	)
	require.NoError(t, err)
	require.Equal(t, tls.RequireAndVerifyClientCert, cfg.ClientAuth)
	require.NotNil(t, cfg.ClientCAs)
}

func TestLoadServerTLSConfigWithMTLSDisabledPassesThrough(t *testing.T) {
	dir := t.TempDir()
	serverCert, serverKey := writeSelfSignedCert(t, dir, "server")

	cfg, err := LoadServerTLSConfigWithMTLS(
		security.ServerTLSConfig{Enabled: true, CertFile: serverCert, KeyFile: serverKey},
		security.ServerMTLSConfig{Enabled: false},
	)
	require.NoError(t, err)
	require.Nil(t, cfg.ClientCAs)
}

func TestLoadClientTLSConfigWithMTLSLoadsClientCert(t *testing.T) {
	dir := t.TempDir()
	clientCert, clientKey := writeSelfSignedCert(t, dir, "client")

	cfg, err := LoadClientTLSConfigWithMTLS(
		security.ClientTLSConfig{},
		security.ClientMTLSConfig{Enabled: true, CertFile: clientCert, KeyFile: clientKey},
	)
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
}

func TestVerifyAllowedClientCN(t *testing.T) {
	dir := t.TempDir()
	certPath, _ := writeSelfSignedCert(t, dir, "trusted-peer")
	pemBytes, err := os.ReadFile(certPath)
	require.NoError(t, err)
	block, _ := pem.Decode(pemBytes)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	chains := [][]*x509.Certificate{{cert}}
	require.NoError(t, verifyAllowedClientCN(chains, []string{"trusted-peer"}))
	require.Error(t, verifyAllowedClientCN(chains, []string{"someone-else"}))
	require.Error(t, verifyAllowedClientCN(nil, []string{"trusted-peer"}))
}

func TestLoadServerTLSConfigWithACMEFallsThroughWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	serverCert, serverKey := writeSelfSignedCert(t, dir, "server")

	cfg, cleanup, err := LoadServerTLSConfigWithACME(context.Background(), security.ServerTLSConfig{
		Enabled: true, Mode: "manual", CertFile: serverCert, KeyFile: serverKey,
	})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	cleanup()
}

func TestLoadClientTLSConfigWithACMEFallsThroughWhenDisabled(t *testing.T) {
	cfg, cleanup, err := LoadClientTLSConfigWithACME(context.Background(), security.ClientTLSConfig{Mode: "manual"})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	cleanup()
}
