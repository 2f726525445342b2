package ai

import (
	"context"
	"strings"
	"sync"

	"honeypot-lab/pkg/logger"
)

// personaTopic selects a response pool
type personaTopic string

const (
	topicLink    personaTopic = "link"
	topicOTP     personaTopic = "otp"
	topicUPI     personaTopic = "upi"
	topicBank    personaTopic = "bank"
	topicVerify  personaTopic = "verify"
	topicBlock   personaTopic = "block"
	topicLottery personaTopic = "lottery"
	topicRefund  personaTopic = "refund"
	topicDefault personaTopic = "default"
)

// topicRules are checked in order against the last transcript line
var topicRules = []struct {
	topic    personaTopic
	keywords []string
}{
	{topicLink, []string{"link", "http", "click", "url", "www"}},
	{topicOTP, []string{"otp", "code", "pin", "cvv"}},
	{topicUPI, []string{"upi", "gpay", "paytm", "phonepe"}},
	{topicBank, []string{"bank", "account", "transfer", "ifsc"}},
	{topicVerify, []string{"verify", "kyc", "aadhaar", "pan"}},
	{topicBlock, []string{"block", "suspend", "freeze", "lock"}},
	{topicLottery, []string{"lottery", "won", "prize", "winner", "reward"}},
	{topicRefund, []string{"refund", "cashback", "return"}},
	{topicUPI, []string{"pay", "amount", "rs", "rupee", "money"}},
	{topicBlock, []string{"urgent", "immediate", "hurry", "fast"}},
}

// Each reply sounds worried, names a warning sign and ends with a question
// that asks for identifying details.
var personaPools = map[personaTopic][]string{
	topicLink: {
		"This link does not look like my bank's website at all and I am scared to open it. Can you tell me your employee ID first?",
		"My grandson says links in messages are how people get cheated. Why not call me from the official number? What is your name?",
		"My phone is showing a warning on this link. Is there an office I can visit instead? What is the address?",
		"I will not press anything until I am sure. Can you send the same thing from your official email address?",
	},
	topicOTP: {
		"The OTP message itself says never share it with anyone, even bank staff. Why do you need it? What is your employee ID?",
		"I heard on the news that banks never ask for OTP on the phone. Can you give me a number I can call back on?",
		"My daughter told me whoever asks for the code is a fraud. How do I know you are real? Who is your supervisor?",
		"If you are from my bank you should not need my PIN. What is your full name and branch?",
	},
	topicUPI: {
		"Why would the bank want money through UPI? They can take it from the account directly. Which department are you from?",
		"Paying someone's UPI to fix my own account sounds strange to me. What is your official phone number?",
		"My son said UPI payment requests like this are a known trick. Can you give me a case reference number?",
		"I am worried about sending money to a personal UPI ID. Whose account is this and what is your employee ID?",
	},
	topicBank: {
		"All my pension is in that account and I am very frightened. But my bank never calls like this. Which branch are you from?",
		"Please explain slowly, I do not understand. Why is this so urgent? What is your direct phone number?",
		"My branch is close by, I can go there in person. Can you tell me the manager's name and your employee ID?",
		"My wife says real bank calls are never this rushed. Can you send me something in writing from your official email?",
	},
	topicVerify: {
		"I did my KYC at the branch last year. Why again on the phone? What is your employee ID and department?",
		"I want to help but I have read about fake verification calls. Can you first verify yourself? What is your office address?",
		"Before I share anything, can you send an official letter? What is the case reference number?",
	},
	topicBlock: {
		"Please do not block my account, I am so worried! But why threaten me on the phone? What is your employee ID?",
		"This rushing is making me suspicious. My bank has never done this. Who is your supervisor?",
		"My family's savings are there and I am shaking. Can you give me the branch address and an official email?",
		"The news says blocking threats are a common scam. How can I be sure you are genuine? What is your phone number?",
	},
	topicLottery: {
		"I never bought any lottery ticket, so how did I win? What is the name of your company?",
		"My neighbour lost money to a prize call like this. Why do I have to pay to get a prize? What is your official website?",
		"This sounds too good to be true. Can you send the documents to my email? What is your employee ID?",
	},
	topicRefund: {
		"A refund means I get money, so why should I pay anything? What is the order number?",
		"Genuine refunds come back automatically, my bank told me. Which company are you calling from and what is your number?",
		"I am confused about this refund. Can you give me a case reference number and your supervisor's name?",
	},
	topicDefault: {
		"I do not understand what is happening and it is making me nervous. Who are you and which organisation are you from?",
		"Something about this does not feel right. Can you tell me your employee ID and direct phone number?",
		"My son says I should always check who is calling. What is your official email and office address?",
		"I am a retired teacher and I do not want to be cheated. Why is this so urgent? Can you share a case reference number?",
		"I got a call like this last week and it was fraud. How can I trust you? What is your supervisor's name?",
	},
}

// PersonaResponder is the rule-based fallback. It picks a pool from the
// last transcript line and rotates through it per session.
type PersonaResponder struct {
	mu     sync.Mutex
	cursor map[string]int
	logger *logger.Logger
}

// NewPersonaResponder creates a new PersonaResponder
func NewPersonaResponder(log *logger.Logger) *PersonaResponder {
	return &PersonaResponder{
		cursor: make(map[string]int),
		logger: log.WithComponent("persona-responder"),
	}
}

func (p *PersonaResponder) Name() string { return "persona" }

// GenerateReply picks the next reply for the session
func (p *PersonaResponder) GenerateReply(_ context.Context, sessionID, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return GreetingReply, nil
	}

	topic := topicFor(lastLine(transcript))
	pool := personaPools[topic]

	p.mu.Lock()
	i := p.cursor[sessionID]
	p.cursor[sessionID] = i + 1
	p.mu.Unlock()

	return pool[i%len(pool)], nil
}

// Forget drops the rotation state for a session
func (p *PersonaResponder) Forget(sessionID string) {
	p.mu.Lock()
	delete(p.cursor, sessionID)
	p.mu.Unlock()
}

// Tracked returns the number of sessions with rotation state
func (p *PersonaResponder) Tracked() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cursor)
}

func topicFor(line string) personaTopic {
	lower := strings.ToLower(line)
	for _, rule := range topicRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.topic
			}
		}
	}
	return topicDefault
}
