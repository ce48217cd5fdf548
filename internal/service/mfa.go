package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image/png"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/gatehouse-cms/gatehouse/internal/config"
	"github.com/gatehouse-cms/gatehouse/internal/model"
)

const (
	DefaultBackupCodeCount = 10
	DefaultMFAIssuer       = "Gatehouse CMS"

	backupCodeLength   = 8
	backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	totpSkew           = 2
	qrCodeSize         = 200
)

// MFA implements TOTP verification and single-use backup codes.
type MFA struct {
	store     *config.Store
	issuer    string
	codeCount int
	now       func() time.Time
}

func NewMFA(store *config.Store, issuer string, codeCount int) *MFA {
	if issuer == "" {
		issuer = DefaultMFAIssuer
	}
	if codeCount <= 0 {
		codeCount = DefaultBackupCodeCount
	}
	return &MFA{store: store, issuer: issuer, codeCount: codeCount, now: time.Now}
}

// MFASetup is a candidate secret awaiting confirmation. Nothing is stored
// until Enable succeeds.
type MFASetup struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauthUrl"`
	QRCode string `json:"qrCode"` // PNG data URL
}

// Setup generates a new TOTP secret for a and renders its provisioning QR
// code.
func (m *MFA) Setup(a *model.Admin) (*MFASetup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: a.Email,
		Algorithm:   otp.AlgorithmSHA1,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}

	return &MFASetup{
		Secret: key.Secret(),
		URL:    key.URL(),
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// VerifyTOTP reports whether code is valid for secret at time t, accepting
// two 30-second steps of clock skew in either direction.
func (m *MFA) VerifyTOTP(secret, code string, t time.Time) bool {
	code = strings.ReplaceAll(strings.TrimSpace(code), " ", "")
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, t.UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// ConsumeBackupCode spends code if it belongs to the admin. It returns false
// without mutation when the code is unknown or already used.
func (m *MFA) ConsumeBackupCode(ctx context.Context, adminID int64, code string) (bool, error) {
	canonical := canonicalBackupCode(code)
	if len(canonical) != backupCodeLength {
		return false, nil
	}
	return m.store.ConsumeBackupCode(ctx, adminID, backupCodeHash(adminID, canonical))
}

// Enable confirms a candidate secret with a current code, then stores it and
// replaces the backup-code set. The plaintext codes are returned once.
func (m *MFA) Enable(ctx context.Context, adminID int64, secret, code string) ([]string, error) {
	if secret == "" || code == "" {
		return nil, validationError("Code and secret are required", nil)
	}
	if !m.VerifyTOTP(secret, code, m.now()) {
		return nil, validationError("Invalid verification code", map[string]interface{}{"field": "code"})
	}

	codes := make([]string, 0, m.codeCount)
	hashes := make([]string, 0, m.codeCount)
	for i := 0; i < m.codeCount; i++ {
		raw, err := newBackupCode()
		if err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		codes = append(codes, raw[:backupCodeLength/2]+"-"+raw[backupCodeLength/2:])
		hashes = append(hashes, backupCodeHash(adminID, raw))
	}

	if err := m.store.EnableMFA(ctx, adminID, secret, hashes); err != nil {
		return nil, fmt.Errorf("store mfa: %w", err)
	}
	return codes, nil
}

// Disable clears the MFA flag, the secret and all backup codes.
func (m *MFA) Disable(ctx context.Context, adminID int64) error {
	return m.store.DisableMFA(ctx, adminID)
}

// RemainingBackupCodes returns the number of unused backup codes.
func (m *MFA) RemainingBackupCodes(ctx context.Context, adminID int64) (int, error) {
	return m.store.CountBackupCodes(ctx, adminID)
}

func newBackupCode() (string, error) {
	var b strings.Builder
	b.Grow(backupCodeLength)
	max := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := 0; i < backupCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(backupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func canonicalBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, " ", "")
}

// backupCodeHash binds a code to its owner so identical codes held by two
// admins hash differently.
func backupCodeHash(adminID int64, canonical string) string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(adminID, 10) + "\x00" + canonical))
	return hex.EncodeToString(sum[:])
}
