package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ErrorUtilsSuite struct {
	suite.Suite
}

func TestErrorUtilsSuite(t *testing.T) {
	suite.Run(t, new(ErrorUtilsSuite))
}

func (s *ErrorUtilsSuite) TestWrapIfNotNilReturnsNilForNil() {
	s.NoError(WrapIfNotNil(nil))
}

func (s *ErrorUtilsSuite) TestWrapIfNotNilPrefixesCallerAndKeepsChain() {
	base := errors.New("boom")
	err := WrapIfNotNil(base, "loading template")

	s.Require().Error(err)
	s.ErrorIs(err, base)
	s.Contains(err.Error(), "utils.(*ErrorUtilsSuite).TestWrapIfNotNilPrefixesCallerAndKeepsChain")
	s.Contains(err.Error(), "loading template: boom")
}

func (s *ErrorUtilsSuite) TestMatchErrorSubstringWalksChainCaseInsensitive() {
	err := fmt.Errorf("outer: %w", errors.New("Rate Limit reached"))

	needle, ok := MatchErrorSubstring(err, "quota", "rate limit")
	s.True(ok)
	s.Equal("rate limit", needle)

	_, ok = MatchErrorSubstring(err, "quota")
	s.False(ok)
	_, ok = MatchErrorSubstring(nil, "quota")
	s.False(ok)
}

func (s *ErrorUtilsSuite) TestShortFuncNameDropsModulePath() {
	s.Equal("extract.(*Pipeline).Extract", shortFuncName("github.com/Nephrolytics-ai/polyglot-extract/pkg/extract.(*Pipeline).Extract"))
	s.Equal("main.main", shortFuncName("main.main"))
}
