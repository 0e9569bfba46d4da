package embed

import "strings"

// Stopword lists are stored accent-folded, matching Tokenizer output.
const englishStopwords = `a about above after again against all am an and any are as at be because
been before being below between both but by can could did do does doing down during each few for
from further had has have having he her here hers herself him himself his how i if in into is it
its itself just me more most my myself no nor not now of off on once only or other our ours
ourselves out over own same she should so some such than that the their theirs them themselves
then there these they this those through to too under until up very was we were what when where
which while who whom why will with would you your yours yourself yourselves rt via amp im dont
cant wont thats`

const frenchStopwords = `a au aux avec ce ces dans de des du elle en et eux il ils je la le les
leur lui ma mais me meme mes moi mon ne nos notre nous on ou par pas pour qu que qui sa se ses son
sur ta te tes toi ton tu un une vos votre vous c d j l m n s t y ete etee etees etes etant suis es
est sommes sont serai sera serons seront serais serait etais etait etions etaient fus fut furent
sois soit soyons soient ai as avons avez ont aurai aura aurons auront avais avait avions avaient
eu eue eus eut eurent ayant cette cet ca ci la plus tres tout tous toute toutes fait faire comme
si sans sous entre aussi bien encore deja alors donc car quand rt via`

var stopwordLists = map[string]string{
	"en": englishStopwords,
	"fr": frenchStopwords,
}

func stopwords(lang string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(stopwordLists[strings.ToLower(lang)]) {
		set[w] = true
	}
	return set
}
