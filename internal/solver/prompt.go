package solver

import (
	"fmt"
	"strings"
)

// DefaultContent は質問文が空の場合にプロバイダーへ送る指示文。
const DefaultContent = "Solve this."

// FallbackSolution はプロバイダーが空の応答を返した場合の解答文。
const FallbackSolution = "Could not generate solution."

// subjectNames はプロンプトに埋め込む教科の表示名。一覧に無い教科はそのまま埋め込む。
var subjectNames = map[string]string{
	"math":      "Math",
	"physics":   "Physics",
	"chemistry": "Chemistry",
	"biology":   "Biology",
	"english":   "English",
	"social":    "Social Science",
}

// BuildSystemPrompt は教科と学年から固定の指示文を組み立てる。
func BuildSystemPrompt(subject, classLevel string) string {
	name, ok := subjectNames[subject]
	if !ok {
		name = subject
	}

	var b strings.Builder
	b.WriteString("You are SnapSolve AI, a homework helper for students (Class 3-12).\n")
	fmt.Fprintf(&b, "Subject: %s\n", name)
	fmt.Fprintf(&b, "Class: %s\n\n", classLevel)
	b.WriteString("Rules:\n")
	b.WriteString("- Solve ONLY what is asked.\n")
	fmt.Fprintf(&b, "- Explain step-by-step in simple words appropriate for Class %s.\n", classLevel)
	b.WriteString("- Use the relevant rules and formulas.\n")
	b.WriteString("- No placeholder answers.\n")
	b.WriteString("- No motivational fluff.\n\n")
	b.WriteString("Format:\n")
	b.WriteString("Your Question: <repeat the question>\n\n")
	b.WriteString("Step-by-Step Solution:\n1) ...\n2) ...\n\n")
	b.WriteString("Final Answer: <answer>")
	return b.String()
}

// BuildMessages はシステム指示とユーザー質問の2件のメッセージを組み立てる。
// 画像はユーザーメッセージにそのまま添付する。
func BuildMessages(req Request) []Message {
	content := req.Content
	if strings.TrimSpace(content) == "" {
		content = DefaultContent
	}

	return []Message{
		{Role: RoleSystem, Text: BuildSystemPrompt(req.Subject, req.ClassLevel)},
		{Role: RoleUser, Text: content, ImageURL: req.Image},
	}
}
