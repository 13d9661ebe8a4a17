package extractor

// SkillEntry 技能词条：规范名加同义词
type SkillEntry struct {
	Name     string
	Synonyms []string
}

// Taxonomy 特征提取所依赖的固定词表
// 提取是纯词表匹配，同样的文本加同样的词表必须得到同样的画像
type Taxonomy struct {
	Skills                []SkillEntry
	Degrees               map[string]string // 关键词 -> 规范学位名
	Fields                []string
	InstitutionMarkers    []string
	CommunicationKeywords []string
	SectionHeaders        []string
}

// DefaultTaxonomy 内置默认词表，配置文件可以整体替换其中的技能与关键词
func DefaultTaxonomy() *Taxonomy {
	return &Taxonomy{
		Skills: []SkillEntry{
			{Name: "JavaScript", Synonyms: []string{"js"}},
			{Name: "TypeScript", Synonyms: []string{"ts"}},
			{Name: "React", Synonyms: []string{"reactjs", "react.js"}},
			{Name: "Vue", Synonyms: []string{"vuejs", "vue.js"}},
			{Name: "Angular", Synonyms: []string{"angularjs"}},
			{Name: "Node.js", Synonyms: []string{"node", "nodejs"}},
			{Name: "Go", Synonyms: []string{"golang"}},
			{Name: "Python", Synonyms: nil},
			{Name: "Java", Synonyms: nil},
			{Name: "C++", Synonyms: []string{"cpp"}},
			{Name: "C#", Synonyms: []string{"csharp"}},
			{Name: "SQL", Synonyms: nil},
			{Name: "MySQL", Synonyms: nil},
			{Name: "PostgreSQL", Synonyms: []string{"postgres"}},
			{Name: "MongoDB", Synonyms: []string{"mongo"}},
			{Name: "Redis", Synonyms: nil},
			{Name: "GraphQL", Synonyms: nil},
			{Name: "AWS", Synonyms: []string{"amazon web services"}},
			{Name: "GCP", Synonyms: []string{"google cloud"}},
			{Name: "Azure", Synonyms: nil},
			{Name: "Docker", Synonyms: nil},
			{Name: "Kubernetes", Synonyms: []string{"k8s"}},
			{Name: "Terraform", Synonyms: nil},
			{Name: "Git", Synonyms: nil},
			{Name: "Kafka", Synonyms: nil},
			{Name: "RabbitMQ", Synonyms: nil},
			{Name: "Machine Learning", Synonyms: []string{"ml"}},
		},
		Degrees: map[string]string{
			"phd":       "PhD",
			"ph.d":      "PhD",
			"doctorate": "PhD",
			"master":    "Master",
			"masters":   "Master",
			"m.s":       "Master",
			"msc":       "Master",
			"mba":       "Master",
			"bachelor":  "Bachelor",
			"bachelors": "Bachelor",
			"b.s":       "Bachelor",
			"bsc":       "Bachelor",
			"b.e":       "Bachelor",
			"b.tech":    "Bachelor",
		},
		Fields: []string{
			"computer science",
			"software engineering",
			"computer engineering",
			"information technology",
			"electrical engineering",
			"information systems",
			"data science",
			"mathematics",
		},
		InstitutionMarkers: []string{
			"university",
			"institute",
			"college",
			"polytechnic",
		},
		CommunicationKeywords: []string{
			"led",
			"collaborated",
			"presented",
			"communicated",
			"mentored",
			"coordinated",
			"negotiated",
			"facilitated",
			"cross-functional",
			"stakeholder",
			"stakeholders",
			"team",
		},
		SectionHeaders: []string{
			"summary",
			"experience",
			"work experience",
			"professional experience",
			"education",
			"skills",
			"technical skills",
			"projects",
			"certifications",
			"publications",
		},
	}
}
