package session

import "crypto/rand"

// excludes 0, O, 1 and I
const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const InviteCodeLength = 6

type InviteCodeGenerator interface {
	Generate() string
}

type randomInviteCodes struct{}

func NewInviteCodeGenerator() InviteCodeGenerator {
	return randomInviteCodes{}
}

func (randomInviteCodes) Generate() string {
	buf := make([]byte, InviteCodeLength)
	rand.Read(buf)
	for i, b := range buf {
		buf[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return string(buf)
}
