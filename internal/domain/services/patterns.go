package services

import (
	"regexp"
	"strings"

	"honeypot-lab/internal/domain/models"
)

// RedFlagPattern maps a red flag to the lower-case terms that raise it
type RedFlagPattern struct {
	Flag     models.RedFlag
	Keywords []string
}

// CategoryPattern maps a scam category to its trigger terms.
// MatchAccountNumber additionally triggers on an account-number-shaped token.
type CategoryPattern struct {
	Category           models.ScamCategory
	Keywords           []string
	MatchAccountNumber bool
}

// PatternLibrary holds the fixed vocabularies and structural patterns used by
// extraction, detection and classification. It is immutable once built and
// safe for concurrent use.
type PatternLibrary struct {
	redFlags           []RedFlagPattern
	categories         []CategoryPattern
	suspiciousKeywords []string
	scamKeywords       []string

	bankAccount *regexp.Regexp
	upiID       *regexp.Regexp
	link        *regexp.Regexp
	phone       *regexp.Regexp
	email       *regexp.Regexp
}

// NewPatternLibrary builds the default library
func NewPatternLibrary() *PatternLibrary {
	return &PatternLibrary{
		// order matters: flags are reported in detection order
		redFlags: []RedFlagPattern{
			{models.RedFlagUrgency, []string{"urgent", "immediately", "act now", "right now", "hurry", "fast", "quickly"}},
			{models.RedFlagCredentialRequest, []string{"otp", "pin", "password", "cvv", "credential"}},
			{models.RedFlagAccountThreats, []string{"blocked", "suspended", "frozen", "locked", "deactivated", "compromised"}},
			{models.RedFlagSuspiciousLinks, []string{"http", "click", "link", "www", "url"}},
			{models.RedFlagPaymentRedirection, []string{"pay", "transfer", "upi", "bank account", "send money", "deposit"}},
			{models.RedFlagRewardLure, []string{"prize", "won", "lottery", "cashback", "reward", "congratulations", "winner"}},
			{models.RedFlagFakeVerification, []string{"kyc", "verify", "aadhaar", "pan card", "identity proof", "verification"}},
		},
		// priority order: first match wins
		categories: []CategoryPattern{
			{models.ScamBankFraud, []string{"bank", "account blocked", "sbi", "hdfc", "icici", "axis", "pnb", "account compromised"}, true},
			{models.ScamUPIFraud, []string{"upi", "gpay", "paytm", "phonepe", "cashback", "upi id"}, false},
			{models.ScamPhishing, []string{"http", "click", "link", "www", "offer", "deal", "amazon", "flipkart"}, false},
			{models.ScamLottery, []string{"lottery", "prize", "won", "winner", "lucky draw"}, false},
			{models.ScamKYCFraud, []string{"kyc", "aadhaar", "pan card", "verify identity", "document verification"}, false},
			{models.ScamRefundFraud, []string{"refund", "return", "cashback refund", "amount credited"}, false},
			{models.ScamInsuranceFraud, []string{"insurance", "policy", "premium", "claim settlement"}, false},
		},
		suspiciousKeywords: []string{
			"urgent", "verify", "blocked", "payment", "kyc", "suspended", "expire",
			"immediately", "prize", "won", "otp", "account blocked", "click here",
			"last chance", "limited time", "claim", "refund", "pan card", "aadhaar",
			"compromised", "fraud", "unauthorized", "security alert", "act now",
			"warning", "penalty", "fine", "legal action",
		},
		scamKeywords: []string{
			// account threats
			"account blocked", "account locked", "account compromised",
			"unauthorized transaction", "suspicious activity",
			// urgency
			"urgent", "immediately", "act now", "last chance", "limited time",
			"hurry", "expires today", "final warning",
			// verification
			"verify", "verify now", "kyc", "pan card", "aadhaar",
			// payments and credentials
			"payment", "upi", "bank", "transfer", "otp", "pin", "cvv", "password",
			// rewards
			"lottery", "won", "prize", "claim", "winner", "reward", "cashback",
			// links
			"click here", "click below", "click link",
			// account state
			"suspended", "blocked", "frozen", "deactivated",
			// financial products
			"refund", "loan", "insurance", "policy", "investment", "trading",
			"crypto", "credit card", "debit card", "free", "offer", "deal",
			// threats
			"expire", "compromised", "fraud", "security alert", "penalty",
			"fine", "legal action",
		},

		bankAccount: regexp.MustCompile(`\b\d{9,18}\b`),
		upiID:       regexp.MustCompile(`\b[\w.\-]+@[a-zA-Z]{2,64}\b`),
		link:        regexp.MustCompile(`https?://[^\s,"'<>]+`),
		phone:       regexp.MustCompile(`\+91[\-\s]?\d{10}|\b\d{10}\b`),
		email:       regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`),
	}
}

// RedFlagPatterns returns the red flag table in detection order
func (l *PatternLibrary) RedFlagPatterns() []RedFlagPattern {
	return append([]RedFlagPattern(nil), l.redFlags...)
}

// CategoryPatterns returns the category table in priority order
func (l *PatternLibrary) CategoryPatterns() []CategoryPattern {
	return append([]CategoryPattern(nil), l.categories...)
}

// SuspiciousKeywords returns the extractor's keyword vocabulary
func (l *PatternLibrary) SuspiciousKeywords() []string {
	return append([]string(nil), l.suspiciousKeywords...)
}

// ScamKeywords returns the intent detector's vocabulary
func (l *PatternLibrary) ScamKeywords() []string {
	return append([]string(nil), l.scamKeywords...)
}

type structuralPattern struct {
	category models.EvidenceCategory
	re       *regexp.Regexp
}

// structural returns the regex for each structural evidence category
func (l *PatternLibrary) structural() []structuralPattern {
	return []structuralPattern{
		{models.EvidenceBankAccounts, l.bankAccount},
		{models.EvidenceUPIIDs, l.upiID},
		{models.EvidencePhishingLinks, l.link},
		{models.EvidencePhoneNumbers, l.phone},
		{models.EvidenceEmailAddresses, l.email},
	}
}

// HasAccountNumber reports whether text carries a 9-18 digit token that is
// not also a phone number.
func (l *PatternLibrary) HasAccountNumber(text string) bool {
	accounts := l.bankAccount.FindAllString(text, -1)
	if len(accounts) == 0 {
		return false
	}

	phones := make(map[string]struct{})
	for _, p := range l.phone.FindAllString(text, -1) {
		digits := digitsOnly(p)
		phones[digits] = struct{}{}
		if len(digits) > 10 {
			phones[digits[len(digits)-10:]] = struct{}{}
		}
	}

	for _, a := range accounts {
		if _, isPhone := phones[a]; !isPhone {
			return true
		}
	}
	return false
}

// containsAny reports whether lower contains any of the keywords
func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
