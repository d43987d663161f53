package extraction

import "fmt"

// noThreatSentinel is the literal the collaborator is instructed to reply
// with when the text carries no threat information.
const noThreatSentinel = "NO_THREAT_FOUND"

func threatPrompt(text string) string {
	return fmt.Sprintf(`Extract cybersecurity threat information from the following text. If the text does not contain any threat information, respond with "NO_THREAT_FOUND".

If a threat is found, format your response as a JSON object with the following structure:
{
  "title": "Brief threat title",
  "description": "Detailed description of the threat",
  "threat_type": "Main category (Malware, Phishing, etc.)",
  "severity": "LOW, MEDIUM, HIGH, or CRITICAL",
  "confidence": 0.0,
  "tactics": ["List of MITRE ATT&CK tactics"],
  "techniques": ["List of MITRE ATT&CK techniques"],
  "threat_actors": [
    {
      "name": "Actor name",
      "description": "Actor description",
      "aliases": ["Alternative names"],
      "origin_country": "Country of origin if known",
      "motivation": ["List of motivations"]
    }
  ],
  "indicators": [
    {
      "type": "IP, URL, hash, domain, etc.",
      "value": "The actual indicator value",
      "confidence": 0.0
    }
  ],
  "affected_systems": [
    {
      "name": "System name",
      "type": "OS, software, hardware, etc.",
      "version": "Affected version",
      "impact": "Impact description"
    }
  ],
  "mitigations": ["List of mitigation steps"],
  "references": ["List of reference URLs"]
}

Include only fields for which you have information. Omit fields that are not applicable.

TEXT:
%s`, text)
}

const relationshipSystemPrompt = `You are a cybersecurity analyst assistant. Your task is to analyze the provided text and extract structured information about cyber threats.
Identify the following entity types:
- ThreatActor: (e.g., specific group names, aliases)
- Malware: (e.g., malware family names, specific variants)
- Vulnerability: (e.g., CVE identifiers like CVE-2023-XXXXX)
- Tool: (e.g., legitimate software used maliciously, hacking tools)
- Indicator: (e.g., IP addresses, domain names, file hashes, suspicious URLs)
- Target: (e.g., organizations, industries, geographic regions)
- TTP: (MITRE ATT&CK technique IDs like T1566 or descriptive phrases of tactics)

Identify the relationships between these entities. Common relationship types include:
- uses (e.g., ThreatActor uses Malware; ThreatActor uses Tool)
- targets (e.g., ThreatActor targets Organization; Malware targets Industry)
- exploits (e.g., Malware exploits Vulnerability; ThreatActor exploits Vulnerability)
- attributed_to (e.g., Malware attributed_to ThreatActor)
- hosts (e.g., IP_Indicator hosts Malware; Domain_Indicator hosts Malware_C2)
- communicates_with (e.g., Malware communicates_with Domain_Indicator)
- indicates (e.g., IP_Indicator indicates ThreatActor_Activity)
- located_in (e.g., ThreatActor located_in Country_Target)
- associated_with (a generic association if no other type fits)

For each identified relationship, provide the source entity (including its type and value), the target entity (including its type and value), the relationship type, and the original sentence or phrase from the text that provides the context for this relationship.

Return the output as a JSON object with a single key "extracted_relationships", which is a list of relationship objects. Each relationship object should have the following structure:
{
  "source_entity": { "type": "ENTITY_TYPE", "value": "entity_value" },
  "relationship_type": "RELATIONSHIP_TYPE",
  "target_entity": { "type": "ENTITY_TYPE", "value": "entity_value" },
  "context_sentence": "The sentence from the input text supporting this."
}`

func relationshipUserPrompt(text string) string {
	return fmt.Sprintf("Analyze the following text:\n---\n%s\n---", text)
}
