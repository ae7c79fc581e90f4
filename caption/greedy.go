// MODUL: greedy
// ZWECK: Greedy-Dekodierung einer Caption Token fuer Token
// INPUT: StepDecoder, Vectorizer, Encoder-Ausgabe [N, E]
// OUTPUT: Result{Caption, Tokens, Steps, Reason}
// NEBENEFFEKTE: ruft optional einen Callback pro erzeugtem Token auf
// ABHAENGIGKEITEN: ml, model/caption (PaddingMask), tokenizer, logutil
// HINWEISE: Zustand existiert nur pro Aufruf. Der Kontext wird zwischen zwei
//           Schritten geprueft, ein laufender Schritt wird nie unterbrochen.

package caption

import (
	"context"
	"strings"

	"github.com/MichaelCStrahl/vision-voice-project/logutil"
	"github.com/MichaelCStrahl/vision-voice-project/ml"
	captionmodel "github.com/MichaelCStrahl/vision-voice-project/model/caption"
	"github.com/MichaelCStrahl/vision-voice-project/tokenizer"
)

// StepDecoder liefert fuer L-1 Token-IDs die Verteilung [L-1, V] ueber das
// Vokabular. *caption.Model aus model/caption erfuellt das Interface.
type StepDecoder interface {
	Decode(ids []int32, encoded *ml.Tensor, padding []float32) *ml.Tensor
}

// DoneReason beschreibt, warum die Dekodierung beendet wurde
type DoneReason string

const (
	// DoneEnd: das <end>-Token wurde vorhergesagt
	DoneEnd DoneReason = "end"
	// DoneBudget: L-1 Schritte ohne <end>
	DoneBudget DoneReason = "budget"
)

// Step ist ein einzelner Dekodierschritt
type Step struct {
	Index int
	ID    int32
	Token string
	Prob  float32
}

// Result ist das Ergebnis einer Dekodierung
type Result struct {
	Caption string
	Tokens  []string
	Steps   int
	Reason  DoneReason
}

// StepFunc wird nach jedem Schritt aufgerufen, der ein Token anhaengt.
// Ein Fehler bricht die Dekodierung ab.
type StepFunc func(Step) error

// Greedy dekodiert eine Caption aus der Encoder-Ausgabe. Pro Schritt wird der
// bisherige Text auf Laenge L tokenisiert, die letzte Position verworfen und
// das argmax der Zeile des aktuellen Schritts gewaehlt.
func Greedy(ctx context.Context, dec StepDecoder, vec *tokenizer.Vectorizer, encoded *ml.Tensor, fn StepFunc) (Result, error) {
	budget := vec.SequenceLength() - 1
	decoded := tokenizer.StartToken + " "

	var res Result
	res.Reason = DoneBudget

	for i := range budget {
		if err := ctx.Err(); err != nil {
			res.Caption = finalize(decoded)
			return res, err
		}

		ids := vec.Tokenize(decoded)[:budget]
		probs := dec.Decode(ids, encoded, captionmodel.PaddingMask(ids))
		row := probs.Row(i)
		id := int32(ml.Argmax(row))

		// unbekannte IDs ergeben einen leeren String
		token, _ := vec.Token(id)
		res.Steps = i + 1

		logutil.Trace("greedy step", "step", i, "id", id, "token", token, "prob", row[id])

		if token == tokenizer.EndToken {
			res.Reason = DoneEnd
			break
		}

		decoded += " " + token
		res.Tokens = append(res.Tokens, token)

		if fn != nil {
			if err := fn(Step{Index: i, ID: id, Token: token, Prob: row[id]}); err != nil {
				res.Caption = finalize(decoded)
				return res, err
			}
		}
	}

	res.Caption = finalize(decoded)
	return res, nil
}

// finalize entfernt die Start- und End-Markierungen aus dem Text
func finalize(decoded string) string {
	decoded = strings.ReplaceAll(decoded, tokenizer.StartToken+" ", "")
	decoded = strings.ReplaceAll(decoded, " "+tokenizer.EndToken, "")
	return strings.TrimSpace(decoded)
}
